// Package app は設定からコンポーネントを組み立ててプロセスを実行する
package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gesturecam/internal/camera"
	"gesturecam/internal/config"
	"gesturecam/internal/emitter"
	"gesturecam/internal/landmark"
	"gesturecam/internal/lifecycle"
	"gesturecam/internal/logging"
	"gesturecam/internal/pipeline"
	"gesturecam/internal/server"
	"gesturecam/internal/state"
	"gesturecam/internal/stream"
)

// ドメインごとの検出信頼度の既定値
const (
	handConfidence = 0.7
	faceConfidence = 0.5
)

// backendRegistrars はビルドタグで追加されるバックエンド登録関数
var backendRegistrars []func(*camera.Factory)

// NewFactory は利用可能な全バックエンドを登録したファクトリーを返す
func NewFactory() *camera.Factory {
	factory := camera.NewFactory()
	for _, register := range backendRegistrars {
		register(factory)
	}
	return factory
}

// SourceConfig は設定からカメラの設定を作る
func SourceConfig(cfg *config.Config) camera.SourceConfig {
	return camera.SourceConfig{
		Device:      cfg.DevicePath(),
		Index:       cfg.Camera.DeviceIndex,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		OpenTimeout: cfg.Camera.OpenTimeout,
	}
}

// ModelArgs はワーカーに渡す引数を組み立てる
func ModelArgs(cfg *config.Config) []string {
	confidence := cfg.Model.MinConfidence
	if confidence <= 0 {
		confidence = handConfidence
		if cfg.Pipeline.Domain == config.DomainFace {
			confidence = faceConfidence
		}
	}

	args := append([]string{}, cfg.Model.Args...)
	args = append(args,
		"--kind", string(cfg.Pipeline.Domain),
		"--codec", cfg.Model.Codec,
		"--max-subjects", "1",
		"--min-confidence", strconv.FormatFloat(confidence, 'f', -1, 64),
	)
	if cfg.Pipeline.Domain == config.DomainFace {
		args = append(args, "--refine-landmarks")
	}
	return args
}

// startModel はランドマークモデルを起動する
// コマンドが空の場合は常に未検出を返すモデルを使う
func startModel(ctx context.Context, cfg *config.Config, kind landmark.Kind, logger zerolog.Logger) (landmark.Model, error) {
	if cfg.Model.Command == "" {
		logger.Warn().Msg("model.command is empty, every frame is treated as no detection")
		return landmark.Nop, nil
	}

	codec, err := landmark.CodecByName(cfg.Model.Codec)
	if err != nil {
		return nil, err
	}

	return landmark.StartProcess(ctx, landmark.ProcessConfig{
		Command:        cfg.Model.Command,
		Args:           ModelArgs(cfg),
		Kind:           kind,
		Codec:          codec,
		RequestTimeout: cfg.Model.RequestTimeout,
		JPEGQuality:    cfg.Pipeline.JPEGQuality,
	}, logger)
}

// closerFunc は関数を lifecycle.Closer として扱う
type closerFunc func()

func (f closerFunc) Close() { f() }

// Run はカメラを開き、キャプチャループとHTTPサーバーをシグナルまで実行する
//
// カメラを開けない場合は camera.ErrDeviceUnavailable をラップして返し、
// サーバーは起動しない。シグナルによる停止では nil を返す。
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	gin.SetMode(logging.GinMode(logger))

	src, err := NewFactory().Create(cfg.Camera.Backend, SourceConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("カメラの作成に失敗: %w", err)
	}

	cam := camera.NewOwned(src)
	if err := cam.Open(ctx); err != nil {
		_ = cam.Release()
		return fmt.Errorf("カメラを開けません: %w", err)
	}
	logger.Info().
		Str("backend", cfg.Camera.Backend).
		Str("device", cfg.DevicePath()).
		Msg("camera opened")

	classifier := state.NewClassifier(cfg.Pipeline.Domain)

	model, err := startModel(ctx, cfg, classifier.Kind(), logger)
	if err != nil {
		_ = cam.Release()
		return fmt.Errorf("ランドマークモデルの起動に失敗: %w", err)
	}

	cell := state.NewCell(classifier.Initial())
	publisher := stream.NewPublisher(cfg.Stream.ViewerBuffer, logger)

	loop := pipeline.New(cam, model, classifier, cell, publisher, pipeline.Options{
		JPEGQuality: cfg.Pipeline.JPEGQuality,
		Annotate:    cfg.Pipeline.Annotate,
	}, logger)

	var mqttEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Enabled {
		mqttEmitter = emitter.New(cfg.MQTT, logger)
		if err := mqttEmitter.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("mqtt unavailable, state changes will not be published")
			mqttEmitter.Close()
			mqttEmitter = nil
		}
	}

	opts := server.Options{
		Config:    cfg,
		Cell:      cell,
		Publisher: publisher,
		Stats:     loop,
		Camera:    cam,
		Logger:    logger,
	}
	if mqttEmitter != nil {
		opts.MQTT = mqttEmitter
	}
	srv, err := server.New(opts)
	if err != nil {
		if mqttEmitter != nil {
			mqttEmitter.Close()
		}
		_ = model.Close()
		_ = cam.Release()
		return err
	}
	loop.OnChange(srv.Notify)

	closers := []lifecycle.Closer{
		// 通常はループの終了時に解放済み。ループが戻らない場合はここで解放する
		closerFunc(func() {
			if err := cam.Release(); err != nil {
				logger.Warn().Err(err).Msg("camera release failed")
			}
		}),
		closerFunc(func() {
			if err := model.Close(); err != nil {
				logger.Warn().Err(err).Msg("landmark worker close failed")
			}
		}),
		srv,
	}
	if mqttEmitter != nil {
		loop.OnChange(mqttEmitter.Notify)
		closers = append(closers, mqttEmitter)
	}

	controller := lifecycle.NewController(cfg.Server.ShutdownGrace, logger)
	return controller.Run(ctx, loop.Run, srv, closers...)
}
