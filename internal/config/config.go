package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Domain は分類対象（手 or 顔）
type Domain string

const (
	DomainHand Domain = "hand" // 指の本数を数える
	DomainFace Domain = "face" // 顔・口の状態を判定する
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Model    ModelConfig    `yaml:"model"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Stream   StreamConfig   `yaml:"stream"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout   time.Duration `yaml:"read_timeout"`   // 読み込みタイムアウト
	WriteTimeout  time.Duration `yaml:"write_timeout"`  // 書き込みタイムアウト（0 = ストリーミング用に無効）
	ShutdownGrace time.Duration `yaml:"shutdown_grace"` // シャットダウン猶予
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Backend     string        `yaml:"backend"`      // ffmpeg / opencv / mock
	DeviceIndex int           `yaml:"device_index"` // /dev/video<N>
	FPS         int           `yaml:"fps"`          // フレームレート
	Width       int           `yaml:"width"`        // 画像幅
	Height      int           `yaml:"height"`       // 画像高さ
	OpenTimeout time.Duration `yaml:"open_timeout"` // 最初のフレームを待つ時間
}

// ModelConfig はランドマーク推論ワーカーの設定
type ModelConfig struct {
	Command        string        `yaml:"command"`         // 空の場合は常に未検出
	Args           []string      `yaml:"args"`            // 追加引数
	Codec          string        `yaml:"codec"`           // msgpack / json
	RequestTimeout time.Duration `yaml:"request_timeout"` // 1フレームあたりの待ち時間
	MinConfidence  float64       `yaml:"min_confidence"`  // 0 の場合はドメイン既定値
}

// PipelineConfig はキャプチャループの設定
type PipelineConfig struct {
	Domain      Domain `yaml:"domain"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	Annotate    bool   `yaml:"annotate"`
}

// StreamConfig は映像配信の設定
type StreamConfig struct {
	ViewerBuffer int           `yaml:"viewer_buffer"` // 視聴者ごとのフレームバッファ
	WriteTimeout time.Duration `yaml:"write_timeout"` // 1パートあたりの書き込み期限
}

// MQTTConfig は状態通知の設定
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // host:port
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"` // 空の場合は自動生成
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Format string `yaml:"format"` // json / console
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          5000,
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  0, // ストリーミング用にタイムアウト無効化
			ShutdownGrace: 5 * time.Second,
		},
		Camera: CameraConfig{
			Backend:     "ffmpeg",
			DeviceIndex: 0,
			FPS:         15,
			Width:       640,
			Height:      480,
			OpenTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Codec:          "msgpack",
			RequestTimeout: 2 * time.Second,
		},
		Pipeline: PipelineConfig{
			Domain:      DomainHand,
			JPEGQuality: 80,
			Annotate:    true,
		},
		Stream: StreamConfig{
			ViewerBuffer: 2,
			WriteTimeout: 2 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: "localhost:1883",
			Topic:  "gesturecam/state",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load は設定を読み込む
// path が空の場合はデフォルト値と環境変数のみを使う
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	applyEnv(cfg)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Pipeline.Domain = Domain(getEnvOrDefault("PIPELINE_DOMAIN", string(cfg.Pipeline.Domain)))
	cfg.Camera.Backend = getEnvOrDefault("CAMERA_BACKEND", cfg.Camera.Backend)
	cfg.Camera.DeviceIndex = getEnvAsIntOrDefault("CAMERA_INDEX", cfg.Camera.DeviceIndex)
	cfg.Model.Command = getEnvOrDefault("MODEL_COMMAND", cfg.Model.Command)
	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		cfg.MQTT.Broker = broker
		cfg.MQTT.Enabled = true
	}
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}
	if c.Server.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("シャットダウン猶予が負の値です: %s", c.Server.ShutdownGrace))
	}

	switch c.Pipeline.Domain {
	case DomainHand, DomainFace:
	default:
		errs = append(errs, fmt.Errorf("無効なドメイン: %q", c.Pipeline.Domain))
	}
	if c.Pipeline.JPEGQuality < 1 || c.Pipeline.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("無効なJPEG品質: %d", c.Pipeline.JPEGQuality))
	}

	if c.Camera.Backend == "" {
		errs = append(errs, errors.New("カメラバックエンドが指定されていません"))
	}
	if c.Camera.DeviceIndex < 0 {
		errs = append(errs, fmt.Errorf("無効なデバイス番号: %d", c.Camera.DeviceIndex))
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		errs = append(errs, fmt.Errorf("無効なFPS値: %d", c.Camera.FPS))
	}
	if c.Camera.Width <= 0 || c.Camera.Width > 4096 || c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		errs = append(errs, fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height))
	}

	switch c.Model.Codec {
	case "msgpack", "json":
	default:
		errs = append(errs, fmt.Errorf("無効なコーデック: %q", c.Model.Codec))
	}
	if c.Model.RequestTimeout <= 0 {
		errs = append(errs, errors.New("推論タイムアウトは正の値が必要です"))
	}

	if c.Stream.ViewerBuffer < 1 {
		errs = append(errs, fmt.Errorf("無効な視聴者バッファ: %d", c.Stream.ViewerBuffer))
	}

	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		errs = append(errs, errors.New("MQTTが有効ですがブローカーまたはトピックが空です"))
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DevicePath はカメラのデバイスパスを返す
func (c *Config) DevicePath() string {
	return fmt.Sprintf("/dev/video%d", c.Camera.DeviceIndex)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
