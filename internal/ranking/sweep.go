package ranking

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/qs3c/place_rank_server/internal/model"
)

// 关键词并发上限
const (
	MinConcurrency     = 1
	MaxConcurrency     = 5
	DefaultConcurrency = 3
)

// ErrSweepStopped ShouldStop 返回 true 后剩余关键词未执行
var ErrSweepStopped = errors.New("sweep stopped")

// ClampConcurrency 非正数使用默认值，其余限制在 1..5
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// SweepRequest 一组关键词的排名查询
type SweepRequest struct {
	Keywords    []string
	Target      string
	MaxPages    int
	Concurrency int
	Location    *model.Location
}

// Hooks 编排层的回调，都可以为空。
// OnResult 在每个关键词结束时调用，可能来自不同 goroutine
type Hooks struct {
	ShouldStop func() bool
	OnResult   func(result model.RankingResult)
}

// Sweep 并发执行所有关键词，并发数由信号量限制。
// 单个关键词失败只记录在对应结果的 Error 中；返回的结果按提交顺序排列
func (r *Ranker) Sweep(ctx context.Context, req SweepRequest, hooks Hooks) ([]model.RankingResult, error) {
	limit := int64(ClampConcurrency(req.Concurrency))
	sem := semaphore.NewWeighted(limit)
	results := make([]model.RankingResult, len(req.Keywords))

	var stopErr error
	for i, keyword := range req.Keywords {
		if err := sem.Acquire(ctx, 1); err != nil {
			stopErr = err
			break
		}
		if hooks.ShouldStop != nil && hooks.ShouldStop() {
			sem.Release(1)
			stopErr = ErrSweepStopped
			break
		}

		go func(i int, keyword string) {
			defer sem.Release(1)

			res, err := r.RankFor(ctx, keyword, req.Target, req.MaxPages, req.Location)
			if err != nil {
				r.logger.Warn("keyword sweep failed", zap.String("keyword", keyword), zap.Error(err))
			}
			res.Position = i
			results[i] = res

			if hooks.OnResult != nil {
				hooks.OnResult(res)
			}
		}(i, keyword)
	}

	// 等待所有已启动的关键词结束
	if err := sem.Acquire(context.Background(), limit); err != nil {
		return results, err
	}

	if stopErr != nil {
		return results, stopErr
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
