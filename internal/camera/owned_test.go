package camera

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestOwned_Lifecycle(t *testing.T) {
	ctx := context.Background()
	mock := NewMockSource(SourceConfig{Width: 16, Height: 8})
	owned := NewOwned(mock)

	if owned.GetStatus() != StatusInactive {
		t.Errorf("Expected initial status inactive, got %s", owned.GetStatus())
	}

	if _, err := owned.Capture(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Capture before open should fail with ErrEndOfStream, got %v", err)
	}

	if err := owned.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if owned.GetStatus() != StatusActive {
		t.Errorf("Expected status active, got %s", owned.GetStatus())
	}

	for i := 1; i <= 3; i++ {
		frame, err := owned.Capture(ctx)
		if err != nil {
			t.Fatalf("Capture %d failed: %v", i, err)
		}
		if frame.Seq != uint64(i) {
			t.Errorf("Expected seq %d, got %d", i, frame.Seq)
		}
		if frame.Image.Bounds().Dx() != 16 || frame.Image.Bounds().Dy() != 8 {
			t.Errorf("Unexpected frame size: %v", frame.Image.Bounds())
		}
	}
	if owned.Captured() != 3 {
		t.Errorf("Expected 3 captured frames, got %d", owned.Captured())
	}

	// 複数回の解放でも下位ソースの解放は1回
	for i := 0; i < 3; i++ {
		if err := owned.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
	}
	_, captureCalls, releaseCalls := mock.Calls()
	if releaseCalls != 1 {
		t.Errorf("Expected exactly 1 release, got %d", releaseCalls)
	}

	// 解放後のキャプチャは下位ソースに届かない
	if _, err := owned.Capture(ctx); !errors.Is(err, ErrReleased) {
		t.Errorf("Expected ErrReleased, got %v", err)
	}
	if _, after, _ := mock.Calls(); after != captureCalls {
		t.Errorf("Capture reached source after release: %d -> %d", captureCalls, after)
	}

	if err := owned.Open(ctx); !errors.Is(err, ErrReleased) {
		t.Errorf("Reopen after release should fail, got %v", err)
	}
	if owned.GetStatus() != StatusReleased {
		t.Errorf("Expected status released, got %s", owned.GetStatus())
	}
}

func TestOwned_OpenFailure(t *testing.T) {
	mock := NewMockSource(SourceConfig{})
	mock.OpenErr = errors.New("no such device")
	owned := NewOwned(mock)

	err := owned.Open(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if owned.GetStatus() != StatusError {
		t.Errorf("Expected status error, got %s", owned.GetStatus())
	}
}

func TestOwned_EndOfStream(t *testing.T) {
	ctx := context.Background()
	mock := NewMockSource(SourceConfig{Width: 4, Height: 4})
	mock.MaxFrames = 1
	owned := NewOwned(mock)

	if err := owned.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := owned.Capture(ctx); err != nil {
		t.Fatalf("First capture failed: %v", err)
	}
	if _, err := owned.Capture(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Expected ErrEndOfStream, got %v", err)
	}
	if owned.GetStatus() != StatusError {
		t.Errorf("Expected status error, got %s", owned.GetStatus())
	}
}

func TestFactory(t *testing.T) {
	factory := NewFactory()

	backends := factory.Backends()
	if len(backends) != 2 || backends[0] != BackendFFmpeg || backends[1] != BackendMock {
		t.Errorf("Unexpected backends: %v", backends)
	}

	src, err := factory.Create(BackendMock, SourceConfig{Width: 8, Height: 8}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Create mock failed: %v", err)
	}
	if _, ok := src.(*MockSource); !ok {
		t.Errorf("Expected *MockSource, got %T", src)
	}

	if _, err := factory.Create(BackendFFmpeg, SourceConfig{}, zerolog.Nop()); err == nil {
		t.Error("Expected error for ffmpeg without device")
	}

	if _, err := factory.Create("gstreamer", SourceConfig{}, zerolog.Nop()); err == nil {
		t.Error("Expected error for unknown backend")
	}

	factory.Register("custom", func(cfg SourceConfig, _ zerolog.Logger) (Source, error) {
		return NewMockSource(cfg), nil
	})
	if _, err := factory.Create("custom", SourceConfig{}, zerolog.Nop()); err != nil {
		t.Errorf("Create custom failed: %v", err)
	}
}
