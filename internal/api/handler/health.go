package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/place_rank_server/internal/model/dto"
	"github.com/qs3c/place_rank_server/internal/pkg/response"
)

// PoolStats worker 池的运行状态
type PoolStats interface {
	Active() int
	Queued() int
}

// JobCounter 存储中的任务数
type JobCounter interface {
	Len() int
}

// WatcherCounter 进度推送连接数
type WatcherCounter interface {
	ConnectionCount() int
}

type HealthHandler struct {
	pool     PoolStats
	store    JobCounter
	watchers WatcherCounter
}

func NewHealthHandler(pool PoolStats, store JobCounter, watchers WatcherCounter) *HealthHandler {
	return &HealthHandler{
		pool:     pool,
		store:    store,
		watchers: watchers,
	}
}

// Check 健康检查
// GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	response.Success(c, dto.HealthResponse{
		Status:      "healthy",
		ActiveJobs:  h.pool.Active(),
		QueuedJobs:  h.pool.Queued(),
		StoredJobs:  h.store.Len(),
		Connections: h.watchers.ConnectionCount(),
		Timestamp:   time.Now(),
	})
}
