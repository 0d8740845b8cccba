// Package lifecycle はプロセスの起動から終了までの順序を管理する
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Loop はキャプチャループ。ctx のキャンセルで戻ること
type Loop func(ctx context.Context) error

// Server はHTTPサーバー（*http.Server が満たす）
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Closer はループ終了後に閉じるもの（配信・WebSocketハブなど）
type Closer interface {
	Close()
}

// Controller はシグナルを受けて決まった順序で停止する
//
//  1. キャプチャループをキャンセル
//  2. ループの終了（＝カメラの解放）を LoopExitTimeout まで待つ
//  3. Closer を登録順に閉じる（ループが戻らなかった場合もここでカメラを解放できる）
//  4. HTTPサーバーを ShutdownGrace 以内に停止
type Controller struct {
	LoopExitTimeout time.Duration
	ShutdownGrace   time.Duration
	Signals         []os.Signal

	logger zerolog.Logger
}

// NewController は新しいControllerを作成する
func NewController(shutdownGrace time.Duration, logger zerolog.Logger) *Controller {
	if shutdownGrace <= 0 {
		shutdownGrace = 5 * time.Second
	}
	return &Controller{
		LoopExitTimeout: shutdownGrace,
		ShutdownGrace:   shutdownGrace,
		Signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		logger:          logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Run はループとサーバーを起動し、シグナルか ctx のキャンセルで停止する
//
// シグナルによる停止では nil を返す。ループが自然に終了してもサーバーは
// 動き続け、最後の状態を返し続ける。サーバー自体が失敗した場合はエラーを返す。
func (c *Controller) Run(ctx context.Context, loop Loop, srv Server, closers ...Closer) error {
	sigCtx, stop := signal.NotifyContext(ctx, c.Signals...)
	defer stop()

	loopCtx, cancelLoop := context.WithCancel(sigCtx)
	defer cancelLoop()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop(loopCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var (
		result     error
		loopExited bool
	)

wait:
	for {
		select {
		case <-sigCtx.Done():
			c.logger.Info().Msg("shutdown signal received")
			break wait
		case err := <-serverErr:
			c.logger.Error().Err(err).Msg("server failed")
			result = fmt.Errorf("サーバーエラー: %w", err)
			break wait
		case err := <-loopDone:
			loopExited = true
			loopDone = nil
			if err != nil {
				c.logger.Error().Err(err).Msg("capture loop ended, serving last state until shutdown")
			} else {
				c.logger.Info().Msg("capture loop ended")
			}
		}
	}

	// 1. ループのキャンセルと終了待ち
	cancelLoop()
	if !loopExited {
		select {
		case <-loopDone:
			c.logger.Info().Msg("capture loop exited")
		case <-time.After(c.LoopExitTimeout):
			c.logger.Warn().Dur("timeout", c.LoopExitTimeout).Msg("capture loop did not exit in time")
		}
	}

	// 2. 配信の終了
	for _, closer := range closers {
		closer.Close()
	}

	// 3. HTTPサーバーの停止
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn().Err(err).Msg("server shutdown incomplete")
	}

	c.logger.Info().Msg("shutdown complete")
	return result
}
