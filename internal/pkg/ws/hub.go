package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
	"github.com/qs3c/place_rank_server/internal/pkg/pubsub"
)

// Hub 按任务 ID 管理订阅进度的连接
type Hub struct {
	// 同一个任务可以有多个观察者
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
}

type Client struct {
	JobID string
	Conn  *websocket.Conn
	mu    sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  applog.OrNop(logger),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.JobID] == nil {
		h.clients[client.JobID] = make(map[*Client]struct{})
	}
	h.clients[client.JobID][client] = struct{}{}

	h.logger.Debug("progress watcher connected",
		zap.String("job_id", client.JobID),
		zap.Int("job_conns", len(h.clients[client.JobID])),
	)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.JobID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.JobID)
		}
	}
	h.logger.Debug("progress watcher disconnected", zap.String("job_id", client.JobID))
}

// SendToJob 向观察该任务的所有连接发送消息
func (h *Hub) SendToJob(jobID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[jobID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.logger.Warn("failed to write progress", zap.String("job_id", jobID), zap.Error(err))
		}
	}
	return nil
}

// PublishProgress 直接推送给本进程的连接，未启用 Redis 时作为 pubsub.Notifier 使用
func (h *Hub) PublishProgress(_ context.Context, msg *pubsub.ProgressMessage) error {
	msg.Fill()
	return h.SendToJob(msg.JobID, &Message{Type: msg.Type, Data: msg})
}

// Forward 把 Redis 订阅到的消息转发给本进程的连接，无人观察的任务直接跳过
func (h *Hub) Forward(msg *pubsub.ProgressMessage) {
	if !h.IsWatched(msg.JobID) {
		return
	}
	if err := h.SendToJob(msg.JobID, &Message{Type: msg.Type, Data: msg}); err != nil {
		h.logger.Warn("failed to forward progress", zap.String("job_id", msg.JobID), zap.Error(err))
	}
}

// IsWatched 是否有连接在观察该任务
func (h *Hub) IsWatched(jobID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[jobID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
