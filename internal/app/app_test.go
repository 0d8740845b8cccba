package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gesturecam/internal/camera"
	"gesturecam/internal/config"
)

func TestModelArgs(t *testing.T) {
	testCases := []struct {
		name       string
		domain     config.Domain
		confidence float64
		extra      []string
		want       []string
	}{
		{
			name:   "手の既定値",
			domain: config.DomainHand,
			want:   []string{"--kind", "hand", "--codec", "msgpack", "--max-subjects", "1", "--min-confidence", "0.7"},
		},
		{
			name:   "顔の既定値",
			domain: config.DomainFace,
			want:   []string{"--kind", "face", "--codec", "msgpack", "--max-subjects", "1", "--min-confidence", "0.5", "--refine-landmarks"},
		},
		{
			name:       "信頼度と追加引数の指定",
			domain:     config.DomainHand,
			confidence: 0.85,
			extra:      []string{"worker.py"},
			want:       []string{"worker.py", "--kind", "hand", "--codec", "msgpack", "--max-subjects", "1", "--min-confidence", "0.85"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Pipeline.Domain = tc.domain
			cfg.Model.MinConfidence = tc.confidence
			cfg.Model.Args = tc.extra

			got := ModelArgs(cfg)
			if !slices.Equal(got, tc.want) {
				t.Errorf("引数が異なります:\n got  %v\n want %v", got, tc.want)
			}
		})
	}
}

func TestSourceConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.DeviceIndex = 2

	got := SourceConfig(cfg)
	if got.Device != "/dev/video2" || got.Index != 2 || got.Width != 640 || got.Height != 480 || got.FPS != 15 {
		t.Errorf("予期しないカメラ設定: %+v", got)
	}
}

func TestNewFactory(t *testing.T) {
	backends := NewFactory().Backends()
	for _, name := range []string{camera.BackendFFmpeg, camera.BackendMock} {
		if !slices.Contains(backends, name) {
			t.Errorf("バックエンド %s が登録されていません: %v", name, backends)
		}
	}
}

func TestRun_CameraUnavailable(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.DeviceIndex = 63

	err := Run(context.Background(), cfg, zerolog.Nop())
	if !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Errorf("ErrDeviceUnavailable を期待しましたが %v でした", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ポートの確保に失敗: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_MockCamera(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.Backend = camera.BackendMock
	cfg.Camera.Width, cfg.Camera.Height = 64, 48
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownGrace = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, zerolog.Nop())
	}()

	url := "http://" + cfg.ServerAddress() + "/get_count"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"count":0}` {
				t.Fatalf("予期しない応答: %d %s", resp.StatusCode, body)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("サーバーが起動しません: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("停止時は nil を期待しましたが %v でした", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("停止がタイムアウトしました")
	}
}

// stallSource は Capture が ctx を無視して戻らないカメラ
type stallSource struct {
	stall    time.Duration
	releases atomic.Int32
}

func (s *stallSource) Open(context.Context) error { return nil }

func (s *stallSource) Capture(context.Context) (*camera.Frame, error) {
	time.Sleep(s.stall)
	return nil, camera.ErrEndOfStream
}

func (s *stallSource) Release() error {
	s.releases.Add(1)
	return nil
}

func TestRun_ReleasesStalledCamera(t *testing.T) {
	src := &stallSource{stall: 2 * time.Second}
	backendRegistrars = append(backendRegistrars, func(f *camera.Factory) {
		f.Register("stall", func(camera.SourceConfig, zerolog.Logger) (camera.Source, error) {
			return src, nil
		})
	})
	t.Cleanup(func() { backendRegistrars = backendRegistrars[:len(backendRegistrars)-1] })

	cfg := config.Default()
	cfg.Camera.Backend = "stall"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownGrace = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	if err := Run(ctx, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("停止時は nil を期待しましたが %v でした", err)
	}
	if elapsed := time.Since(start); elapsed >= src.stall {
		t.Errorf("ループを待たずに停止するはずが %s かかりました", elapsed)
	}

	// ループはまだキャプチャ中だが、カメラは1回だけ解放済み
	if got := src.releases.Load(); got != 1 {
		t.Errorf("解放回数1を期待しましたが %d でした", got)
	}

	// 遅れて戻ったループの解放は重複しない
	time.Sleep(src.stall)
	if got := src.releases.Load(); got != 1 {
		t.Errorf("ループ終了後の解放回数1を期待しましたが %d でした", got)
	}
}
