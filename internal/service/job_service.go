package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/model/dto"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
	"github.com/qs3c/place_rank_server/internal/ranking"
	"github.com/qs3c/place_rank_server/internal/repository"
	"github.com/qs3c/place_rank_server/internal/scraper"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrJobNotComplete = errors.New("job not complete")
	ErrServiceBusy    = errors.New("service busy")
)

const (
	MaxKeywords     = 20
	MaxTargetLength = 100
)

// CancelOrDelete 的处理结果
const (
	ActionCancelled = "cancelled"
	ActionDeleted   = "deleted"
)

// NotCompleteError 结果未就绪，携带任务当前状态
type NotCompleteError struct {
	Status   model.JobStatus
	Progress float64
}

func (e *NotCompleteError) Error() string {
	return fmt.Sprintf("job not complete: status=%s", e.Status)
}

func (e *NotCompleteError) Is(target error) bool {
	return target == ErrJobNotComplete
}

// JobScheduler 把任务交给后台执行
type JobScheduler interface {
	Submit(jobID string) error
}

// ListingExtractor 详情页抽取
type ListingExtractor interface {
	ExtractListing(ctx context.Context, url string) (*model.ListingRecord, error)
}

// RankingSweeper 多关键词排名
type RankingSweeper interface {
	Sweep(ctx context.Context, req ranking.SweepRequest, hooks ranking.Hooks) ([]model.RankingResult, error)
}

type JobService struct {
	store     repository.JobStore
	scheduler JobScheduler
	extractor ListingExtractor
	sweeper   RankingSweeper
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewJobService(
	store repository.JobStore,
	scheduler JobScheduler,
	extractor ListingExtractor,
	sweeper RankingSweeper,
	cfg *config.Config,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		store:     store,
		scheduler: scheduler,
		extractor: extractor,
		sweeper:   sweeper,
		cfg:       cfg,
		logger:    applog.OrNop(logger),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// SubmitRanking 提交排名任务
func (s *JobService) SubmitRanking(req *dto.RankingJobRequest) (*dto.SubmitJobResponse, error) {
	params, err := s.rankingParams(req.Keywords, req.TargetBusiness, req.MaxPages, req.MaxConcurrency, req.Location)
	if err != nil {
		return nil, err
	}
	return s.submit(model.KindRankingSweep, params)
}

// SubmitIntegrated 提交综合分析任务，未提供目标商家名时从 URL 推断
func (s *JobService) SubmitIntegrated(req *dto.IntegratedJobRequest) (*dto.SubmitJobResponse, error) {
	placeURL, err := validatePlaceURL(req.PlaceURL)
	if err != nil {
		return nil, err
	}

	target := strings.TrimSpace(req.TargetBusiness)
	if target == "" {
		target = scraper.BusinessNameFromURL(placeURL)
	}

	params, err := s.rankingParams(req.Keywords, target, req.MaxPages, req.MaxConcurrency, req.Location)
	if err != nil {
		return nil, err
	}
	params.PlaceURL = placeURL
	return s.submit(model.KindIntegratedAnalysis, params)
}

func (s *JobService) submit(kind model.JobKind, params model.JobParams) (*dto.SubmitJobResponse, error) {
	job := model.NewJob(s.newID(), kind, params, s.now())
	if err := s.store.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.scheduler.Submit(job.ID); err != nil {
		// 未能入队的任务不保留记录
		_ = s.store.Delete(job.ID)
		return nil, fmt.Errorf("%w: %w", ErrServiceBusy, err)
	}

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.Int("keywords", len(params.Keywords)),
	)

	return &dto.SubmitJobResponse{
		JobID:   job.ID,
		Kind:    job.Kind,
		Status:  job.Status,
		Message: "任务已提交",
	}, nil
}

// Status 返回任务快照
func (s *JobService) Status(id string) (*dto.JobStatusResponse, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return dto.NewJobStatusResponse(job), nil
}

// Results 返回已完成任务的结果与汇总，未完成时返回 *NotCompleteError
func (s *JobService) Results(id string) (*dto.JobResultsResponse, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, &NotCompleteError{Status: job.Status, Progress: job.Progress}
	}
	return &dto.JobResultsResponse{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Results:     job.Results,
		Summary:     model.Summarize(job.Results),
		ArchiveURL:  job.ArchiveURL,
		CompletedAt: job.CompletedAt,
	}, nil
}

// CancelOrDelete 进行中的任务被取消，终态任务被删除
func (s *JobService) CancelOrDelete(id string) (string, error) {
	_, err := s.store.Update(id, func(j *model.Job) error { return j.Cancel(s.now()) })
	switch {
	case err == nil:
		s.logger.Info("job cancelled", zap.String("job_id", id))
		return ActionCancelled, nil
	case errors.Is(err, model.ErrJobTerminal):
		if err := s.store.Delete(id); err != nil {
			return "", err
		}
		s.logger.Info("job deleted", zap.String("job_id", id))
		return ActionDeleted, nil
	default:
		return "", err
	}
}

// List 按创建时间列出所有任务
func (s *JobService) List() []dto.JobListItem {
	jobs := s.store.List()
	items := make([]dto.JobListItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, dto.JobListItem{
			JobID:     j.ID,
			Kind:      j.Kind,
			Status:    j.Status,
			Progress:  j.Progress,
			CreatedAt: j.CreatedAt,
		})
	}
	return items
}

// AnalyzePlace 同步抽取单个详情页
func (s *JobService) AnalyzePlace(ctx context.Context, req *dto.PlaceAnalysisRequest) (*dto.PlaceAnalysisResponse, error) {
	placeURL, err := validatePlaceURL(req.URL)
	if err != nil {
		return nil, err
	}

	listing, err := s.extractor.ExtractListing(ctx, placeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze place: %w", err)
	}

	summary := model.Summarize(model.JobResults{Listing: listing})
	return &dto.PlaceAnalysisResponse{
		Listing: listing,
		Summary: summary.Listing,
	}, nil
}

// CheckRanking 同步检查关键词排名，单个关键词失败记录在结果中
func (s *JobService) CheckRanking(ctx context.Context, req *dto.RankingJobRequest) (*dto.RankingCheckResponse, error) {
	params, err := s.rankingParams(req.Keywords, req.TargetBusiness, req.MaxPages, req.MaxConcurrency, req.Location)
	if err != nil {
		return nil, err
	}

	results, err := s.sweeper.Sweep(ctx, ranking.SweepRequest{
		Keywords:    params.Keywords,
		Target:      params.TargetBusiness,
		MaxPages:    params.MaxPages,
		Concurrency: params.MaxConcurrency,
		Location:    params.Location,
	}, ranking.Hooks{})
	if err != nil {
		return nil, fmt.Errorf("failed to check ranking: %w", err)
	}

	summary := model.Summarize(model.JobResults{Rankings: results})
	return &dto.RankingCheckResponse{
		TargetBusiness: params.TargetBusiness,
		Results:        results,
		Summary:        summary.Ranking,
	}, nil
}

func (s *JobService) rankingParams(keywords []string, target string, maxPages, concurrency int, loc *dto.LocationRequest) (model.JobParams, error) {
	var params model.JobParams

	if len(keywords) == 0 || len(keywords) > MaxKeywords {
		return params, fmt.Errorf("%w: keywords must contain 1-%d entries", ErrInvalidRequest, MaxKeywords)
	}
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			return params, fmt.Errorf("%w: keywords must not be empty", ErrInvalidRequest)
		}
		cleaned = append(cleaned, kw)
	}

	target = strings.TrimSpace(target)
	if n := utf8.RuneCountInString(target); n == 0 || n > MaxTargetLength {
		return params, fmt.Errorf("%w: target business must be 1-%d characters", ErrInvalidRequest, MaxTargetLength)
	}

	if maxPages == 0 {
		maxPages = s.cfg.Ranking.DefaultMaxPages
	}
	if maxPages < 1 || maxPages > ranking.MaxPages {
		return params, fmt.Errorf("%w: max pages must be 1-%d", ErrInvalidRequest, ranking.MaxPages)
	}

	if concurrency == 0 {
		concurrency = s.cfg.Jobs.DefaultConcurrency
	}
	if concurrency < ranking.MinConcurrency || concurrency > ranking.MaxConcurrency {
		return params, fmt.Errorf("%w: max concurrency must be %d-%d", ErrInvalidRequest, ranking.MinConcurrency, ranking.MaxConcurrency)
	}

	location, err := toLocation(loc)
	if err != nil {
		return params, err
	}

	return model.JobParams{
		Keywords:       cleaned,
		TargetBusiness: target,
		MaxPages:       maxPages,
		MaxConcurrency: concurrency,
		Location:       location,
	}, nil
}

func toLocation(req *dto.LocationRequest) (*model.Location, error) {
	if req == nil {
		return nil, nil
	}

	switch req.Type {
	case model.LocationCoords:
		if req.Lat == nil || req.Lng == nil {
			return nil, fmt.Errorf("%w: coords location requires lat and lng", ErrInvalidRequest)
		}
		if *req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180 {
			return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidRequest)
		}
	case model.LocationAddress:
		if strings.TrimSpace(req.Address) == "" && strings.TrimSpace(req.Name) == "" {
			return nil, fmt.Errorf("%w: address location requires address or name", ErrInvalidRequest)
		}
	case model.LocationURL:
		if strings.TrimSpace(req.URL) == "" {
			return nil, fmt.Errorf("%w: url location requires url", ErrInvalidRequest)
		}
	default:
		return nil, fmt.Errorf("%w: unknown location type %q", ErrInvalidRequest, req.Type)
	}

	return &model.Location{
		Type:    req.Type,
		Lat:     req.Lat,
		Lng:     req.Lng,
		Name:    req.Name,
		Address: req.Address,
		URL:     req.URL,
	}, nil
}

func validatePlaceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: place url is required", ErrInvalidRequest)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid place url %q", ErrInvalidRequest, raw)
	}
	return raw, nil
}
