package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/model"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
	"github.com/qs3c/place_rank_server/internal/pkg/pubsub"
	"github.com/qs3c/place_rank_server/internal/ranking"
	"github.com/qs3c/place_rank_server/internal/repository"
)

// ListingExtractor 详情页抽取
type ListingExtractor interface {
	ExtractListing(ctx context.Context, url string) (*model.ListingRecord, error)
}

// RankingSweeper 多关键词排名
type RankingSweeper interface {
	Sweep(ctx context.Context, req ranking.SweepRequest, hooks ranking.Hooks) ([]model.RankingResult, error)
}

// ReportArchiver 结果归档，未配置时为 nil
type ReportArchiver interface {
	UploadReport(jobID string, data []byte) (string, error)
}

// Processor 任务处理器，驱动一个任务记录走完所有阶段。
// 任务记录归存储所有，处理器只在执行期间按 ID 访问
type Processor struct {
	store     repository.JobStore
	extractor ListingExtractor
	sweeper   RankingSweeper
	notifier  pubsub.Notifier
	archiver  ReportArchiver
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor 创建任务处理器；notifier 与 archiver 可以为 nil
func NewProcessor(
	store repository.JobStore,
	extractor ListingExtractor,
	sweeper RankingSweeper,
	notifier pubsub.Notifier,
	archiver ReportArchiver,
	cfg *config.Config,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		store:     store,
		extractor: extractor,
		sweeper:   sweeper,
		notifier:  notifier,
		archiver:  archiver,
		cfg:       cfg,
		logger:    applog.OrNop(logger),
		now:       time.Now,
	}
}

// Process 处理一个任务。任务在执行中被取消或删除时静默返回
func (p *Processor) Process(ctx context.Context, jobID string) error {
	log := p.logger.With(zap.String("job_id", jobID))

	job, err := p.store.Update(jobID, func(j *model.Job) error { return j.Start(p.now()) })
	if err != nil {
		if errors.Is(err, model.ErrJobTerminal) || errors.Is(err, repository.ErrJobNotFound) {
			log.Info("job no longer runnable, skipping", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to start job: %w", err)
	}
	p.publish(ctx, job, pubsub.StepStarted, "")
	log.Info("job started", zap.String("kind", string(job.Kind)), zap.Int("keywords", job.TotalKeywords))

	switch job.Kind {
	case model.KindRankingSweep:
		err = p.runRankingSweep(ctx, job)
	case model.KindIntegratedAnalysis:
		err = p.runIntegrated(ctx, job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if err != nil {
		return p.handleError(ctx, jobID, err)
	}

	return p.complete(ctx, jobID)
}

// runRankingSweep 每个关键词完成后按提交位置写入结果并推进进度
func (p *Processor) runRankingSweep(ctx context.Context, job *model.Job) error {
	return p.sweep(ctx, job)
}

// runIntegrated 抽取阶段完全结束后才开始排名阶段；抽取失败终止整个任务
func (p *Processor) runIntegrated(ctx context.Context, job *model.Job) error {
	id := job.ID

	job, err := p.store.Update(id, func(j *model.Job) error {
		return j.StartPhase(model.PhaseExtraction, model.ProgressExtractionStarted)
	})
	if err != nil {
		return err
	}
	p.publish(ctx, job, pubsub.StepExtracting, "")

	listing, err := p.extractor.ExtractListing(ctx, job.Params.PlaceURL)
	if err != nil {
		return fmt.Errorf("listing extraction failed: %w", err)
	}

	job, err = p.store.Update(id, func(j *model.Job) error {
		if err := j.SetListing(listing); err != nil {
			return err
		}
		return j.CompletePhase(model.PhaseExtraction, model.ProgressExtractionDone)
	})
	if err != nil {
		return err
	}
	p.publish(ctx, job, pubsub.StepExtracted, "")

	job, err = p.store.Update(id, func(j *model.Job) error {
		return j.StartPhase(model.PhaseRanking, model.ProgressRankingStarted)
	})
	if err != nil {
		return err
	}
	p.publish(ctx, job, pubsub.StepRanking, "")

	if err := p.sweep(ctx, job); err != nil {
		return err
	}

	_, err = p.store.Update(id, func(j *model.Job) error {
		return j.CompletePhase(model.PhaseRanking, model.ProgressDone)
	})
	return err
}

// sweep 关键词之间检查取消标记；已开始的关键词会自然结束
func (p *Processor) sweep(ctx context.Context, job *model.Job) error {
	id := job.ID
	params := job.Params

	concurrency := params.MaxConcurrency
	if concurrency <= 0 {
		concurrency = p.cfg.Jobs.DefaultConcurrency
	}

	hooks := ranking.Hooks{
		ShouldStop: func() bool { return p.stopped(id) },
		OnResult: func(res model.RankingResult) {
			updated, err := p.store.Update(id, func(j *model.Job) error { return j.AddRanking(res) })
			if err != nil {
				// 取消后到达的结果直接丢弃
				return
			}
			p.publishKeyword(ctx, updated, res)
		},
	}

	_, err := p.sweeper.Sweep(ctx, ranking.SweepRequest{
		Keywords:    params.Keywords,
		Target:      params.TargetBusiness,
		MaxPages:    params.MaxPages,
		Concurrency: concurrency,
		Location:    params.Location,
	}, hooks)
	if errors.Is(err, ranking.ErrSweepStopped) {
		return model.ErrJobTerminal
	}
	return err
}

// stopped 任务被取消或删除
func (p *Processor) stopped(id string) bool {
	job, err := p.store.Get(id)
	if err != nil {
		return true
	}
	return job.IsTerminal()
}

func (p *Processor) complete(ctx context.Context, id string) error {
	now := p.now()
	archiveURL := p.archive(id, now)

	job, err := p.store.Update(id, func(j *model.Job) error {
		if archiveURL != "" {
			j.ArchiveURL = archiveURL
		}
		return j.Complete(now)
	})
	if err != nil {
		return p.handleError(ctx, id, err)
	}

	p.publish(ctx, job, pubsub.StepDone, "")
	elapsed := time.Duration(0)
	if job.StartedAt != nil && job.CompletedAt != nil {
		elapsed = job.CompletedAt.Sub(*job.StartedAt)
	}
	p.logger.Info("job completed",
		zap.String("job_id", id),
		zap.Int("keywords", job.CompletedKeywords),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// archive 以完成后的状态上传结果报告；失败只记录日志，不影响任务状态
func (p *Processor) archive(id string, completedAt time.Time) string {
	if p.archiver == nil {
		return ""
	}
	job, err := p.store.Get(id)
	if err != nil || job.Complete(completedAt) != nil {
		return ""
	}

	data, err := json.Marshal(map[string]interface{}{
		"job":     job,
		"summary": model.Summarize(job.Results),
	})
	if err != nil {
		p.logger.Warn("failed to marshal report", zap.String("job_id", id), zap.Error(err))
		return ""
	}

	url, err := p.archiver.UploadReport(id, data)
	if err != nil {
		p.logger.Warn("failed to archive report", zap.String("job_id", id), zap.Error(err))
		return ""
	}
	return url
}

// handleError 任务已进入终态（取消）或被删除时不是错误，其余情况标记为 Failed
func (p *Processor) handleError(ctx context.Context, id string, cause error) error {
	if errors.Is(cause, model.ErrJobTerminal) || errors.Is(cause, repository.ErrJobNotFound) {
		if job, err := p.store.Get(id); err == nil && job.Status == model.StatusCancelled {
			p.publish(ctx, job, pubsub.StepCancelled, "")
		}
		p.logger.Info("job stopped", zap.String("job_id", id))
		return nil
	}

	job, err := p.store.Update(id, func(j *model.Job) error { return j.Fail(cause, p.now()) })
	if err != nil {
		if errors.Is(err, model.ErrJobTerminal) || errors.Is(err, repository.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	p.publish(ctx, job, pubsub.StepFailed, job.Error)
	p.logger.Error("job failed", zap.String("job_id", id), zap.Error(cause))
	return cause
}

func (p *Processor) publish(ctx context.Context, job *model.Job, step, errMsg string) {
	p.notify(ctx, &pubsub.ProgressMessage{
		JobID:             job.ID,
		Kind:              string(job.Kind),
		Status:            string(job.Status),
		Step:              step,
		Progress:          job.Progress,
		CompletedKeywords: job.CompletedKeywords,
		TotalKeywords:     job.TotalKeywords,
		Error:             errMsg,
	})
}

func (p *Processor) publishKeyword(ctx context.Context, job *model.Job, res model.RankingResult) {
	p.notify(ctx, &pubsub.ProgressMessage{
		JobID:             job.ID,
		Kind:              string(job.Kind),
		Status:            string(job.Status),
		Step:              pubsub.StepKeyword,
		Progress:          job.Progress,
		CompletedKeywords: job.CompletedKeywords,
		TotalKeywords:     job.TotalKeywords,
		Keyword:           res.Keyword,
		Rank:              res.RankValue(),
		Error:             res.Error,
	})
}

func (p *Processor) notify(ctx context.Context, msg *pubsub.ProgressMessage) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishProgress(ctx, msg); err != nil {
		p.logger.Warn("failed to publish progress", zap.String("job_id", msg.JobID), zap.Error(err))
	}
}
