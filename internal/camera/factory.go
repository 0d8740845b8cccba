package camera

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// BackendFFmpeg はffmpeg経由のV4L2キャプチャ
	BackendFFmpeg = "ffmpeg"
	// BackendMock はテスト・デモ用の生成フレーム
	BackendMock = "mock"
)

// Creator はソース作成関数の型
type Creator func(cfg SourceConfig, logger zerolog.Logger) (Source, error)

// Factory はバックエンド名からソースを作成するファクトリー
type Factory struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewFactory は標準バックエンドを登録済みのファクトリーを作成する
func NewFactory() *Factory {
	factory := &Factory{
		creators: make(map[string]Creator),
	}

	factory.Register(BackendFFmpeg, newFFmpegFromConfig)
	factory.Register(BackendMock, func(cfg SourceConfig, _ zerolog.Logger) (Source, error) {
		return NewMockSource(cfg), nil
	})

	return factory
}

// Register はソース作成関数を登録する
func (f *Factory) Register(backend string, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[backend] = creator
}

// Create はソースを作成する
func (f *Factory) Create(backend string, cfg SourceConfig, logger zerolog.Logger) (Source, error) {
	f.mu.RLock()
	creator, exists := f.creators[backend]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("サポートされていないカメラバックエンド: %s (利用可能: %v)", backend, f.Backends())
	}

	return creator(cfg, logger)
}

// Backends は登録済みのバックエンド名を返す
func (f *Factory) Backends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFFmpegFromConfig(cfg SourceConfig, logger zerolog.Logger) (Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("ffmpegバックエンドにはデバイスパスが必要です")
	}
	return NewFFmpegSource(cfg, NewLinuxDiscovery(), logger), nil
}
