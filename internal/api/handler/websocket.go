package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/internal/pkg/ws"
	"github.com/qs3c/place_rank_server/internal/repository"
	"github.com/qs3c/place_rank_server/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub        *ws.Hub
	jobService *service.JobService
	logger     *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, jobService *service.JobService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		jobService: jobService,
		logger:     logger,
	}
}

// Handle 订阅单个任务的进度
// GET /api/v1/ws?job_id=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing job_id"})
		return
	}

	if _, err := h.jobService.Status(jobID); err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &ws.Client{
		JobID: jobID,
		Conn:  conn,
	}

	h.hub.Register(client)

	// 保持连接，读取消息（主要用于检测断开）
	go func() {
		defer h.hub.Unregister(client)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}
