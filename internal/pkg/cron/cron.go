package cron

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/internal/model"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
)

// ExpiredSweeper 删除过期终态任务的存储
type ExpiredSweeper interface {
	SweepExpired(maxAge time.Duration, now time.Time) []*model.Job
}

// ReportRemover 删除已归档的报告，未配置 OSS 时为 nil
type ReportRemover interface {
	DeleteReport(url string) error
}

// Service 定期清理过期任务及其归档报告
type Service struct {
	store     ExpiredSweeper
	reports   ReportRemover
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewService(store ExpiredSweeper, reports ReportRemover, retention, interval time.Duration, logger *zap.Logger) *Service {
	if retention <= 0 {
		retention = time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		store:     store,
		reports:   reports,
		retention: retention,
		interval:  interval,
		logger:    applog.OrNop(logger),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runCleanup()
	s.logger.Info("cron service started",
		zap.Duration("retention", s.retention),
		zap.Duration("interval", s.interval),
	)
}

// Stop 停止定时任务，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info("cron service stopped")
	})
}

func (s *Service) runCleanup() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunNow(time.Now())
		}
	}
}

// RunNow 立即执行一次清理，返回删除的任务数
func (s *Service) RunNow(now time.Time) int {
	removed := s.store.SweepExpired(s.retention, now)

	reports := 0
	if s.reports != nil {
		for _, job := range removed {
			if job.ArchiveURL == "" {
				continue
			}
			if err := s.reports.DeleteReport(job.ArchiveURL); err != nil {
				s.logger.Warn("failed to delete archived report", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			reports++
		}
	}

	if len(removed) > 0 {
		s.logger.Info("cleanup summary", zap.Int("jobs", len(removed)), zap.Int("reports", reports))
	}
	return len(removed)
}
