package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recorder は停止処理の順序を記録する
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeServer は Shutdown されるまで ListenAndServe がブロックするサーバー
type fakeServer struct {
	rec     *recorder
	started chan struct{}
	stopped chan struct{}
	once    sync.Once
	failErr error
}

func newFakeServer(rec *recorder) *fakeServer {
	return &fakeServer{rec: rec, started: make(chan struct{}), stopped: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	close(s.started)
	if s.failErr != nil {
		return s.failErr
	}
	<-s.stopped
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.rec.add("server shutdown")
	s.once.Do(func() { close(s.stopped) })
	return nil
}

type closerFunc func()

func (f closerFunc) Close() { f() }

func loopUntilCancel(rec *recorder) Loop {
	return func(ctx context.Context) error {
		<-ctx.Done()
		rec.add("camera released")
		return nil
	}
}

func newTestController() *Controller {
	c := NewController(time.Second, zerolog.Nop())
	c.Signals = []os.Signal{syscall.SIGUSR1}
	return c
}

// TestControllerSignalOrder はシグナル受信時の停止順序をテストする
func TestControllerSignalOrder(t *testing.T) {
	rec := &recorder{}
	srv := newFakeServer(rec)
	c := newTestController()

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), loopUntilCancel(rec), srv, closerFunc(func() { rec.add("publisher closed") }))
	}()

	<-srv.started
	// NotifyContext の登録は Run の先頭で完了している
	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("シグナルの送信に失敗: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("シグナルによる停止は nil のはず: got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("停止しませんでした")
	}

	want := []string{"camera released", "publisher closed", "server shutdown"}
	got := rec.list()
	if len(got) != len(want) {
		t.Fatalf("イベント数が不正: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("停止順序が不正: got %v, want %v", got, want)
			break
		}
	}
}

// TestControllerLoopEndsKeepsServing はループ終了後もサーバーが動き続けることをテストする
func TestControllerLoopEndsKeepsServing(t *testing.T) {
	rec := &recorder{}
	srv := newFakeServer(rec)
	c := newTestController()

	ctx, cancel := context.WithCancel(context.Background())
	loop := func(context.Context) error {
		rec.add("camera released")
		return errors.New("end of stream")
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, loop, srv) }()

	<-srv.started
	select {
	case <-done:
		t.Fatal("ループ終了でサーバーが止まってはいけません")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("nil が期待されます: got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("停止しませんでした")
	}

	got := rec.list()
	if len(got) != 2 || got[0] != "camera released" || got[1] != "server shutdown" {
		t.Errorf("イベントが不正: %v", got)
	}
}

// TestControllerServerFailure はサーバーの失敗がエラーとして返ることをテストする
func TestControllerServerFailure(t *testing.T) {
	rec := &recorder{}
	srv := newFakeServer(rec)
	srv.failErr = errors.New("address already in use")
	c := newTestController()

	err := c.Run(context.Background(), loopUntilCancel(rec), srv)
	if err == nil || !errors.Is(err, srv.failErr) {
		t.Fatalf("サーバーエラーが期待されます: got %v", err)
	}

	got := rec.list()
	if len(got) == 0 || got[0] != "camera released" {
		t.Errorf("カメラが解放されていません: %v", got)
	}
}

// TestControllerLoopExitTimeout はループが戻らなくても停止が進むことをテストする
func TestControllerLoopExitTimeout(t *testing.T) {
	rec := &recorder{}
	srv := newFakeServer(rec)
	c := newTestController()
	c.LoopExitTimeout = 50 * time.Millisecond

	block := make(chan struct{})
	defer close(block)
	loop := func(context.Context) error {
		<-block
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, loop, srv, closerFunc(func() { rec.add("camera released") }))
	}()

	<-srv.started
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("タイムアウト後も停止しませんでした")
	}

	// ループが戻らなくても Closer 経由でカメラは解放される
	want := []string{"camera released", "server shutdown"}
	got := rec.list()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("停止順序が不正: got %v, want %v", got, want)
	}
}
