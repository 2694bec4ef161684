package model

import (
	"errors"
	"time"
)

// ErrJobTerminal 任务已处于终态，拒绝任何后续修改
var ErrJobTerminal = errors.New("job is in a terminal state")

// ErrPhaseOrder 阶段切换顺序不合法
var ErrPhaseOrder = errors.New("invalid phase transition")

type JobKind string

const (
	KindRankingSweep       JobKind = "ranking"
	KindIntegratedAnalysis JobKind = "integrated"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal completed / failed / cancelled 为终态
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Phase string

const (
	PhaseExtraction Phase = "extraction"
	PhaseRanking    Phase = "ranking"
)

type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
)

// 综合分析各阶段对应的进度
const (
	ProgressExtractionStarted = 25.0
	ProgressExtractionDone    = 50.0
	ProgressRankingStarted    = 75.0
	ProgressDone              = 100.0
)

// Location 排名搜索的位置设置
// 位置设置的类型
const (
	LocationCoords  = "coords"
	LocationAddress = "address"
	LocationURL     = "url"
)

type Location struct {
	Type    string   `json:"type"` // coords, address, url
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Name    string   `json:"name,omitempty"`
	Address string   `json:"address,omitempty"`
	URL     string   `json:"url,omitempty"`
}

// JobParams 经过校验的提交参数
type JobParams struct {
	Keywords       []string  `json:"keywords"`
	TargetBusiness string    `json:"target_business"`
	PlaceURL       string    `json:"place_url,omitempty"`
	MaxPages       int       `json:"max_pages"`
	MaxConcurrency int       `json:"max_concurrency"`
	Location       *Location `json:"location,omitempty"`
}

// JobResults 按阶段划分的结果；Listing 只属于综合分析
type JobResults struct {
	Listing  *ListingRecord  `json:"listing,omitempty"`
	Rankings []RankingResult `json:"rankings"`
}

// Job 一次客户端提交的工作单元
type Job struct {
	ID                string                `json:"job_id"`
	Kind              JobKind               `json:"kind"`
	Status            JobStatus             `json:"status"`
	Progress          float64               `json:"progress"`
	Phases            map[Phase]PhaseStatus `json:"phases,omitempty"`
	Params            JobParams             `json:"params"`
	Results           JobResults            `json:"results"`
	TotalKeywords     int                   `json:"total_keywords"`
	CompletedKeywords int                   `json:"completed_keywords"`
	Error             string                `json:"error,omitempty"`
	ArchiveURL        string                `json:"archive_url,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	StartedAt         *time.Time            `json:"started_at,omitempty"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
}

// NewJob 创建 Pending 状态的任务记录
func NewJob(id string, kind JobKind, params JobParams, now time.Time) *Job {
	job := &Job{
		ID:            id,
		Kind:          kind,
		Status:        StatusPending,
		Params:        params,
		Results:       JobResults{Rankings: []RankingResult{}},
		TotalKeywords: len(params.Keywords),
		CreatedAt:     now,
	}
	if kind == KindIntegratedAnalysis {
		job.Phases = map[Phase]PhaseStatus{
			PhaseExtraction: PhasePending,
			PhaseRanking:    PhasePending,
		}
	}
	return job
}

func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Clone 深拷贝，存储层用它对外提供快照
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Params.Keywords = append([]string(nil), j.Params.Keywords...)
	if j.Params.Location != nil {
		loc := *j.Params.Location
		c.Params.Location = &loc
	}
	if j.Phases != nil {
		c.Phases = make(map[Phase]PhaseStatus, len(j.Phases))
		for k, v := range j.Phases {
			c.Phases[k] = v
		}
	}
	if j.Results.Listing != nil {
		c.Results.Listing = j.Results.Listing.Clone()
	}
	c.Results.Rankings = append([]RankingResult{}, j.Results.Rankings...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Start Pending -> Running
func (j *Job) Start(now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if j.Status != StatusPending {
		return ErrPhaseOrder
	}
	j.Status = StatusRunning
	j.Progress = 0
	j.StartedAt = &now
	return nil
}

// SetProgress 进度只增不减
func (j *Job) SetProgress(p float64) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if p > 100 {
		p = 100
	}
	if p > j.Progress {
		j.Progress = p
	}
	return nil
}

// StartPhase 阶段严格按顺序执行：抽取完成后才能开始排名
func (j *Job) StartPhase(phase Phase, progress float64) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if j.Status != StatusRunning || j.Phases == nil || j.Phases[phase] != PhasePending {
		return ErrPhaseOrder
	}
	if phase == PhaseRanking && j.Phases[PhaseExtraction] != PhaseCompleted {
		return ErrPhaseOrder
	}
	j.Phases[phase] = PhaseRunning
	return j.SetProgress(progress)
}

func (j *Job) CompletePhase(phase Phase, progress float64) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if j.Phases == nil || j.Phases[phase] != PhaseRunning {
		return ErrPhaseOrder
	}
	j.Phases[phase] = PhaseCompleted
	return j.SetProgress(progress)
}

// SetListing 保存抽取阶段结果
func (j *Job) SetListing(listing *ListingRecord) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	j.Results.Listing = listing
	return nil
}

// AddRanking 按提交顺序插入关键词结果（与完成顺序无关），并推进排名任务的进度
func (j *Job) AddRanking(r RankingResult) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	idx := len(j.Results.Rankings)
	for i, existing := range j.Results.Rankings {
		if existing.Position == r.Position {
			return nil
		}
		if existing.Position > r.Position {
			idx = i
			break
		}
	}
	j.Results.Rankings = append(j.Results.Rankings, RankingResult{})
	copy(j.Results.Rankings[idx+1:], j.Results.Rankings[idx:])
	j.Results.Rankings[idx] = r
	j.CompletedKeywords = len(j.Results.Rankings)

	if j.Kind == KindRankingSweep && j.TotalKeywords > 0 {
		return j.SetProgress(100 * float64(j.CompletedKeywords) / float64(j.TotalKeywords))
	}
	return nil
}

// resultsComplete 所有声明阶段完成且结果齐全
func (j *Job) resultsComplete() bool {
	if len(j.Results.Rankings) != j.TotalKeywords {
		return false
	}
	if j.Kind == KindIntegratedAnalysis {
		if j.Results.Listing == nil {
			return false
		}
		for _, st := range j.Phases {
			if st != PhaseCompleted {
				return false
			}
		}
	}
	return true
}

// Complete Running -> Completed
func (j *Job) Complete(now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if j.Status != StatusRunning || !j.resultsComplete() {
		return ErrPhaseOrder
	}
	j.Status = StatusCompleted
	j.Progress = ProgressDone
	j.Error = ""
	j.CompletedAt = &now
	return nil
}

// Fail Running -> Failed，进度冻结在当前值
func (j *Job) Fail(cause error, now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	msg := "unknown error"
	if cause != nil && cause.Error() != "" {
		msg = cause.Error()
	}
	j.Status = StatusFailed
	j.Error = msg
	j.CompletedAt = &now
	return nil
}

// Cancel Pending|Running -> Cancelled
func (j *Job) Cancel(now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	j.Status = StatusCancelled
	j.CompletedAt = &now
	return nil
}
