package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelJobProgress = "job_progress"
)

// ProgressMessage 进度消息
type ProgressMessage struct {
	Type              string  `json:"type"`
	JobID             string  `json:"job_id"`
	Kind              string  `json:"kind"`
	Status            string  `json:"status"`
	Step              string  `json:"step"`
	Progress          float64 `json:"progress"`
	CompletedKeywords int     `json:"completed_keywords"`
	TotalKeywords     int     `json:"total_keywords"`
	Keyword           string  `json:"keyword,omitempty"`
	Rank              int     `json:"rank,omitempty"` // 关键词命中位置，未命中为 0
	Message           string  `json:"message,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// 进度阶段常量
const (
	StepStarted    = "started"
	StepExtracting = "extracting"
	StepExtracted  = "extracted"
	StepRanking    = "ranking"
	StepKeyword    = "keyword"
	StepDone       = "done"
	StepFailed     = "failed"
	StepCancelled  = "cancelled"
)

// 阶段对应的进度百分比，keyword 的进度由任务自身计算
var StepProgress = map[string]float64{
	StepExtracting: 25,
	StepExtracted:  50,
	StepRanking:    75,
	StepDone:       100,
}

// 阶段对应的消息
var StepMessages = map[string]string{
	StepStarted:    "任务开始",
	StepExtracting: "正在抽取详情页信息",
	StepExtracted:  "详情页抽取完成",
	StepRanking:    "正在查询关键词排名",
	StepKeyword:    "关键词排名完成",
	StepDone:       "分析完成",
	StepFailed:     "任务失败",
	StepCancelled:  "任务已取消",
}

// Notifier 进度推送目标：Redis 发布者或本进程的 WebSocket hub
type Notifier interface {
	PublishProgress(ctx context.Context, msg *ProgressMessage) error
}

// Fill 补全类型、默认进度和消息
func (m *ProgressMessage) Fill() {
	m.Type = "job_progress"

	if m.Progress == 0 && m.Step != "" {
		if progress, ok := StepProgress[m.Step]; ok {
			m.Progress = progress
		}
	}
	if m.Message == "" && m.Step != "" {
		if message, ok := StepMessages[m.Step]; ok {
			m.Message = message
		}
	}
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Fill()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelJobProgress, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelJobProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}
