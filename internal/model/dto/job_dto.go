package dto

import (
	"time"

	"github.com/qs3c/place_rank_server/internal/model"
)

// LocationRequest 排名搜索的位置设置
type LocationRequest struct {
	Type    string   `json:"type" binding:"required,oneof=coords address url"`
	Lat     *float64 `json:"lat,omitempty" binding:"omitempty,min=-90,max=90"`
	Lng     *float64 `json:"lng,omitempty" binding:"omitempty,min=-180,max=180"`
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address,omitempty"`
	URL     string   `json:"url,omitempty"`
}

// RankingJobRequest 提交排名任务
type RankingJobRequest struct {
	TargetBusiness string           `json:"target_business" binding:"required"`
	Keywords       []string         `json:"keywords" binding:"required"`
	Location       *LocationRequest `json:"location,omitempty"`
	MaxPages       int              `json:"max_pages,omitempty"`
	MaxConcurrency int              `json:"max_concurrent,omitempty"`
}

// IntegratedJobRequest 提交综合分析任务
type IntegratedJobRequest struct {
	PlaceURL       string           `json:"place_url" binding:"required"`
	TargetBusiness string           `json:"target_business,omitempty"`
	Keywords       []string         `json:"keywords" binding:"required"`
	Location       *LocationRequest `json:"location,omitempty"`
	MaxPages       int              `json:"max_pages,omitempty"`
	MaxConcurrency int              `json:"max_concurrent,omitempty"`
}

// PlaceAnalysisRequest 同步分析单个详情页
type PlaceAnalysisRequest struct {
	URL string `json:"url" binding:"required"`
}

// SubmitJobResponse 提交任务响应
type SubmitJobResponse struct {
	JobID   string          `json:"job_id"`
	Kind    model.JobKind   `json:"kind"`
	Status  model.JobStatus `json:"status"`
	Message string          `json:"message"`
}

// JobStatusResponse 任务状态快照，不含完整结果
type JobStatusResponse struct {
	JobID             string                            `json:"job_id"`
	Kind              model.JobKind                     `json:"kind"`
	Status            model.JobStatus                   `json:"status"`
	Progress          float64                           `json:"progress"`
	Phases            map[model.Phase]model.PhaseStatus `json:"phases,omitempty"`
	TotalKeywords     int                               `json:"total_keywords"`
	CompletedKeywords int                               `json:"completed_keywords"`
	Error             string                            `json:"error,omitempty"`
	CreatedAt         time.Time                         `json:"created_at"`
	StartedAt         *time.Time                        `json:"started_at,omitempty"`
	CompletedAt       *time.Time                        `json:"completed_at,omitempty"`
}

// JobResultsResponse 已完成任务的完整结果
type JobResultsResponse struct {
	JobID       string           `json:"job_id"`
	Kind        model.JobKind    `json:"kind"`
	Status      model.JobStatus  `json:"status"`
	Results     model.JobResults `json:"results"`
	Summary     model.Summary    `json:"summary"`
	ArchiveURL  string           `json:"archive_url,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// JobNotCompleteData 结果未就绪时返回当前状态
type JobNotCompleteData struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Progress float64         `json:"progress"`
}

// JobListItem 任务列表项
type JobListItem struct {
	JobID     string          `json:"job_id"`
	Kind      model.JobKind   `json:"kind"`
	Status    model.JobStatus `json:"status"`
	Progress  float64         `json:"progress"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeleteJobResponse 取消或删除结果
type DeleteJobResponse struct {
	JobID  string `json:"job_id"`
	Action string `json:"action"` // cancelled, deleted
}

// PlaceAnalysisResponse 同步分析结果
type PlaceAnalysisResponse struct {
	Listing *model.ListingRecord  `json:"listing"`
	Summary *model.ListingSummary `json:"summary"`
}

// RankingCheckResponse 同步排名检查结果
type RankingCheckResponse struct {
	TargetBusiness string                `json:"target_business"`
	Results        []model.RankingResult `json:"results"`
	Summary        *model.RankingSummary `json:"summary"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status      string    `json:"status"`
	ActiveJobs  int       `json:"active_jobs"`
	QueuedJobs  int       `json:"queued_jobs"`
	StoredJobs  int       `json:"stored_jobs"`
	Connections int       `json:"connections"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewJobStatusResponse 从任务快照构造状态响应
func NewJobStatusResponse(job *model.Job) *JobStatusResponse {
	return &JobStatusResponse{
		JobID:             job.ID,
		Kind:              job.Kind,
		Status:            job.Status,
		Progress:          job.Progress,
		Phases:            job.Phases,
		TotalKeywords:     job.TotalKeywords,
		CompletedKeywords: job.CompletedKeywords,
		Error:             job.Error,
		CreatedAt:         job.CreatedAt,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
	}
}
