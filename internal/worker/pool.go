package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// JobProcessor 按任务 ID 执行任务
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Pool 固定数量的 worker 从进程内队列取任务执行
type Pool struct {
	processor JobProcessor
	queue     chan string
	workers   int
	logger    *zap.Logger

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  atomic.Int32
}

func NewPool(processor JobProcessor, cfg config.JobsConfig, logger *zap.Logger) *Pool {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	return &Pool{
		processor: processor,
		queue:     make(chan string, size),
		workers:   workers,
		logger:    applog.OrNop(logger),
	}
}

// Start 启动 worker 循环，ctx 结束或调用 Stop 后退出
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.queue)))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("worker shutting down", zap.Int("worker", workerID))
			return
		case jobID := <-p.queue:
			p.active.Add(1)
			p.logger.Debug("processing job", zap.Int("worker", workerID), zap.String("job_id", jobID))
			if err := p.processor.Process(ctx, jobID); err != nil {
				p.logger.Warn("job failed", zap.Int("worker", workerID), zap.String("job_id", jobID), zap.Error(err))
			}
			p.active.Add(-1)
		}
	}
}

// Submit 把任务放入队列，不阻塞
func (p *Pool) Submit(jobID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Active 正在执行的任务数
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued 排队中的任务数
func (p *Pool) Queued() int {
	return len(p.queue)
}

// Stop 停止接收新任务并等待 worker 退出
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}
