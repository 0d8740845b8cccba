package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// MockSource はテスト・デモ用の Source 実装
//
// 実デバイスを使わずに、動く縦縞のフレームを生成する。
type MockSource struct {
	Width  int
	Height int
	FPS    int // 0 の場合は待たずに返す

	// MaxFrames を超えると ErrEndOfStream を返す（0 は無制限）
	MaxFrames uint64
	// OpenErr が設定されていると Open が失敗する
	OpenErr error

	mu           sync.Mutex
	opened       bool
	released     bool
	seq          uint64
	openCalls    int
	captureCalls int
	releaseCalls int
	lastCapture  time.Time
}

// NewMockSource は新しいMockSourceを作成する
func NewMockSource(cfg SourceConfig) *MockSource {
	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		width, height = 320, 240
	}
	return &MockSource{Width: width, Height: height, FPS: cfg.FPS}
}

// Open はモックカメラを開く
func (m *MockSource) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCalls++
	if m.OpenErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, m.OpenErr)
	}
	m.opened = true
	return nil
}

// Capture はフレームを生成する
func (m *MockSource) Capture(ctx context.Context) (*Frame, error) {
	if err := m.throttle(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.captureCalls++
	if m.released {
		return nil, ErrReleased
	}
	if !m.opened {
		return nil, ErrEndOfStream
	}
	if m.MaxFrames > 0 && m.seq >= m.MaxFrames {
		return nil, ErrEndOfStream
	}

	m.seq++
	return &Frame{
		Image:      m.render(m.seq),
		Seq:        m.seq,
		CapturedAt: time.Now(),
	}, nil
}

func (m *MockSource) throttle(ctx context.Context) error {
	if m.FPS <= 0 {
		return ctx.Err()
	}

	m.mu.Lock()
	wait := time.Until(m.lastCapture.Add(time.Second / time.Duration(m.FPS)))
	m.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.lastCapture = time.Now()
	m.mu.Unlock()
	return nil
}

// render は seq に応じて位置が変わる縦縞を描く
func (m *MockSource) render(seq uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	bar := int(seq*4) % m.Width
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := color.RGBA{R: uint8(x * 255 / m.Width), G: uint8(y * 255 / m.Height), B: 64, A: 255}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Release はモックカメラを解放する
func (m *MockSource) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseCalls++
	m.released = true
	m.opened = false
	return nil
}

// Calls は各操作の呼び出し回数を返す
func (m *MockSource) Calls() (open, capture, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls, m.captureCalls, m.releaseCalls
}
