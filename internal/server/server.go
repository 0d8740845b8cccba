package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gesturecam/internal/config"
	"gesturecam/internal/generated"
	"gesturecam/internal/logging"
	"gesturecam/internal/state"
	"gesturecam/internal/stream"
)

// Options はサーバーが参照するコンポーネント
type Options struct {
	Config    *config.Config
	Cell      *state.Cell
	Publisher *stream.Publisher
	Stats     StatsProvider // nil の場合はループの統計を返さない
	Camera    CameraStatus  // nil の場合はカメラの状態を返さない
	MQTT      EmitterStats  // MQTT無効時は nil
	Logger    zerolog.Logger
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	hub        *Hub
	dashboard  *dashboard
	logger     zerolog.Logger
}

// New は新しいServerインスタンスを作成する
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	logger := opts.Logger.With().Str("component", "server").Logger()

	dash, err := newDashboard(cfg.Pipeline.Domain)
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(logging.GinRecovery(logger), logging.GinLogger(opts.Logger))

	s := &Server{
		config:    cfg,
		engine:    engine,
		hub:       NewHub(opts.Cell, opts.Logger),
		dashboard: dash,
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	handler := &GestureHandler{
		config:    cfg,
		cell:      opts.Cell,
		publisher: opts.Publisher,
		stats:     opts.Stats,
		camera:    opts.Camera,
		mqtt:      opts.MQTT,
		server:    s,
	}
	s.setupRoutes(handler)

	return s, nil
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(handler generated.ServerInterface) {
	generated.RegisterHandlersWithOptions(s.engine, handler, generated.GinServerOptions{
		ErrorHandler: func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, generated.ErrorResponse{
				Error:     "invalid_parameter",
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
		},
	})

	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/api/openapi.json", s.handleOpenAPI)
	s.engine.GET("/ws/state", gin.WrapH(s.hub))
}

// handleRoot はダッシュボードを返す
func (s *Server) handleRoot(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.dashboard.render(&buf); err != nil {
		s.logger.Error().Err(err).Msg("dashboard render failed")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// handleOpenAPI は埋め込まれたAPI定義を返す
func (s *Server) handleOpenAPI(c *gin.Context) {
	swagger, err := generated.GetSwagger()
	if err != nil {
		c.JSON(http.StatusInternalServerError, generated.ErrorResponse{
			Error:     "openapi_unavailable",
			Message:   "API定義の読み込みに失敗しました",
			Details:   stringPtr(err.Error()),
			Timestamp: time.Now(),
		})
		return
	}
	c.JSON(http.StatusOK, swagger)
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Notify は状態の変化をWebSocketクライアントに送る
func (s *Server) Notify(snap state.Snapshot) {
	s.hub.Notify(snap)
}

// ListenAndServe はサーバーを起動する
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	s.hub.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Close はWebSocketクライアントを切断する
func (s *Server) Close() {
	s.hub.Close()
}
