package repository

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/qs3c/place_rank_server/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// JobStore 任务记录的键值存储。Get/List 返回快照，Update 原子地应用修改
type JobStore interface {
	Create(job *model.Job) error
	Get(id string) (*model.Job, error)
	Update(id string, fn func(job *model.Job) error) (*model.Job, error)
	Delete(id string) error
	List() []*model.Job
	SweepExpired(maxAge time.Duration, now time.Time) []*model.Job
	Len() int
	Clear()
}

type jobEntry struct {
	mu  sync.Mutex
	job *model.Job
}

// MemoryJobStore 进程内实现：map 由读写锁保护，每个任务有独立的互斥锁，
// 不同任务的更新互不阻塞
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*jobEntry),
	}
}

func (s *MemoryJobStore) Create(job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = &jobEntry{job: job.Clone()}
	return nil
}

func (s *MemoryJobStore) entry(id string) (*jobEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[id]
	return e, ok
}

func (s *MemoryJobStore) Get(id string) (*model.Job, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Update 在副本上执行 fn，成功后整体替换；fn 返回错误时记录保持不变
func (s *MemoryJobStore) Update(id string, fn func(job *model.Job) error) (*model.Job, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.job.Clone()
	if err := fn(working); err != nil {
		return e.job.Clone(), err
	}
	e.job = working
	return working.Clone(), nil
}

func (s *MemoryJobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// List 按创建时间升序返回所有任务快照
func (s *MemoryJobStore) List() []*model.Job {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		jobs = append(jobs, e.job.Clone())
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// SweepExpired 删除结束时间早于 now-maxAge 的终态任务，返回被删除任务的快照
func (s *MemoryJobStore) SweepExpired(maxAge time.Duration, now time.Time) []*model.Job {
	cutoff := now.Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*model.Job
	for id, e := range s.jobs {
		e.mu.Lock()
		expired := e.job.IsTerminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff)
		if expired {
			removed = append(removed, e.job.Clone())
		}
		e.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
	return removed
}

func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Clear 关闭时清空
func (s *MemoryJobStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*jobEntry)
}
