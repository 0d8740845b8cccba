//go:build opencv

package opencv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"gesturecam/internal/camera"
)

// Backend はファクトリーに登録するバックエンド名
const Backend = "opencv"

// Source は gocv.VideoCapture を使う camera.Source 実装
type Source struct {
	cfg    camera.SourceConfig
	logger zerolog.Logger

	mu       sync.Mutex
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	seq      uint64
	reading  bool // Read 実行中
	released bool
}

// New は新しいSourceを作成する
func New(cfg camera.SourceConfig, logger zerolog.Logger) (camera.Source, error) {
	return &Source{
		cfg:    cfg,
		logger: logger.With().Str("component", "camera").Str("backend", Backend).Int("index", cfg.Index).Logger(),
	}, nil
}

// Register はファクトリーにOpenCVバックエンドを登録する
func Register(factory *camera.Factory) {
	factory.Register(Backend, New)
}

// Open はV4L2 API指定でデバイスを開く
func (s *Source) Open(_ context.Context) error {
	capture, err := gocv.OpenVideoCaptureWithAPI(s.cfg.Index, gocv.VideoCaptureV4L2)
	if err != nil {
		return fmt.Errorf("%w: デバイス %d: %v", camera.ErrDeviceUnavailable, s.cfg.Index, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return fmt.Errorf("%w: デバイス %d を開けません", camera.ErrDeviceUnavailable, s.cfg.Index)
	}

	capture.Set(gocv.VideoCaptureBufferSize, 1)
	if s.cfg.Width > 0 && s.cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	}
	if s.cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(s.cfg.FPS))
	}

	s.mu.Lock()
	s.capture = capture
	s.mat = gocv.NewMat()
	s.mu.Unlock()

	s.logger.Info().
		Float64("width", capture.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", capture.Get(gocv.VideoCaptureFrameHeight)).
		Float64("fps", capture.Get(gocv.VideoCaptureFPS)).
		Msg("opencv capture opened")

	return nil
}

// Capture は1フレームを読み込む
func (s *Source) Capture(ctx context.Context) (*camera.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.capture == nil || s.released {
		s.mu.Unlock()
		return nil, camera.ErrEndOfStream
	}
	s.reading = true
	s.mu.Unlock()

	ok := s.capture.Read(&s.mat)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = false
	if s.released {
		// Read 中に Release された
		s.closeLocked()
		return nil, camera.ErrEndOfStream
	}
	if !ok || s.mat.Empty() {
		return nil, camera.ErrEndOfStream
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: 画像変換に失敗: %v", camera.ErrEndOfStream, err)
	}

	s.seq++
	return &camera.Frame{
		Image:      camera.ToRGBA(img, s.cfg.Width, s.cfg.Height),
		Seq:        s.seq,
		CapturedAt: time.Now(),
	}, nil
}

// Release はデバイスとバッファを解放する
// Read の実行中は、その Read が戻ったときに解放する
func (s *Source) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released = true
	if s.reading {
		return nil
	}
	return s.closeLocked()
}

func (s *Source) closeLocked() error {
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	_ = s.mat.Close()
	s.capture = nil
	return err
}
