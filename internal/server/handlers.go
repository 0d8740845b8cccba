package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gesturecam/internal/camera"
	"gesturecam/internal/config"
	"gesturecam/internal/emitter"
	"gesturecam/internal/generated"
	"gesturecam/internal/pipeline"
	"gesturecam/internal/state"
	"gesturecam/internal/stream"
)

// StatsProvider はキャプチャループの統計を返す（*pipeline.Pipeline が満たす）
type StatsProvider interface {
	Stats() pipeline.Stats
}

// CameraStatus はカメラの状態を返す（*camera.Owned が満たす）
type CameraStatus interface {
	GetStatus() camera.Status
	Captured() uint64
}

// EmitterStats は状態通知の統計を返す（*emitter.MQTTEmitter が満たす）
type EmitterStats interface {
	Stats() emitter.Stats
}

// GestureHandler は生成されたServerInterfaceを実装する
type GestureHandler struct {
	config    *config.Config
	cell      *state.Cell
	publisher *stream.Publisher
	stats     StatsProvider
	camera    CameraStatus
	mqtt      EmitterStats
	server    *Server
}

var _ generated.ServerInterface = (*GestureHandler)(nil)

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *GestureHandler) HealthCheck(c *gin.Context) {
	response := generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus は顔の状態取得エンドポイントの実装
func (h *GestureHandler) GetStatus(c *gin.Context) {
	if h.config.Pipeline.Domain != config.DomainFace {
		h.notFound(c, "顔モードではありません")
		return
	}

	c.JSON(http.StatusOK, generated.StatusResponse{
		Status: string(h.cell.Read().Face),
	})
}

// GetCount は指の本数取得エンドポイントの実装
func (h *GestureHandler) GetCount(c *gin.Context) {
	if h.config.Pipeline.Domain != config.DomainHand {
		h.notFound(c, "手モードではありません")
		return
	}

	c.JSON(http.StatusOK, generated.CountResponse{
		Count: h.cell.Read().Count,
	})
}

// GetStats は統計取得エンドポイントの実装
func (h *GestureHandler) GetStats(c *gin.Context) {
	snap := h.cell.Snapshot()
	label := snap.State.Label()
	published := h.publisher.Stats()

	response := generated.StatsResponse{
		Domain:     generated.StatsResponseDomain(h.config.Pipeline.Domain),
		State:      &label,
		Generation: int64(snap.Generation),
		Published:  int64(published.Published),
		Viewers:    published.Viewers,
		Drops:      int64(published.Drops),
		WsClients:  h.server.hub.Clients(),
	}

	if h.camera != nil {
		response.Camera = string(h.camera.GetStatus())
		response.Captured = int64(h.camera.Captured())
	}

	if h.mqtt != nil {
		mqtt := h.mqtt.Stats()
		response.Mqtt = &generated.MqttStats{
			Published: int64(mqtt.Published),
			Dropped:   int64(mqtt.Dropped),
			Errors:    int64(mqtt.Errors),
		}
	}

	if h.stats != nil {
		loop := h.stats.Stats()
		response.Frames = int64(loop.Frames)
		response.Detections = int64(loop.Detections)
		response.ModelTimeouts = int64(loop.ModelTimeouts)
		if !loop.StartedAt.IsZero() {
			response.UptimeSeconds = time.Since(loop.StartedAt).Seconds()
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetVideoFeed はMJPEGストリーミングエンドポイントの実装
func (h *GestureHandler) GetVideoFeed(c *gin.Context, params generated.GetVideoFeedParams) {
	opts := stream.WriteOptions{WriteTimeout: h.config.Stream.WriteTimeout}
	if params.MaxFps != nil {
		if *params.MaxFps <= 0 {
			errorResponse := generated.ErrorResponse{
				Error:     "invalid_parameter",
				Message:   "max_fps は正の値を指定してください",
				Timestamp: time.Now(),
			}
			c.JSON(http.StatusBadRequest, errorResponse)
			return
		}
		opts.MaxFPS = *params.MaxFps
	}

	viewer, err := h.publisher.Subscribe()
	if err != nil {
		errorResponse := generated.ErrorResponse{
			Error:     "stream_closed",
			Message:   "映像の配信は終了しています",
			Details:   stringPtr(err.Error()),
			Timestamp: time.Now(),
		}
		c.JSON(http.StatusServiceUnavailable, errorResponse)
		return
	}
	defer viewer.Close()

	// レスポンスヘッダーを設定
	stream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	err = stream.WriteMJPEG(c.Request.Context(), c.Writer, viewer, opts)
	logger := h.server.logger.With().Str("viewer", viewer.ID).Logger()
	switch {
	case err == nil:
		logger.Debug().Msg("viewer disconnected")
	case errors.Is(err, stream.ErrPublisherClosed):
		logger.Debug().Msg("stream ended")
	default:
		logger.Debug().Err(err).Msg("viewer dropped")
	}
}

// ヘルパー関数

func (h *GestureHandler) notFound(c *gin.Context, message string) {
	errorResponse := generated.ErrorResponse{
		Error:     "not_found",
		Message:   message,
		Details:   stringPtr("domain=" + string(h.config.Pipeline.Domain)),
		Timestamp: time.Now(),
	}
	c.JSON(http.StatusNotFound, errorResponse)
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
