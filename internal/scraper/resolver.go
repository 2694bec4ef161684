package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/pkg/browser"
)

var (
	// ErrExtractionFailed 整页抽取失败，总是与下面两个具体原因之一一起返回
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrStrategyExhausted = errors.New("document strategies exhausted")
)

// Resolution 解析出的工作文档
type Resolution struct {
	Doc      browser.Document
	Strategy model.Strategy
}

// Resolver 先尝试嵌入 frame，超时后回退到顶层文档。
// 只有 frame 出现或就绪等待的超时才会触发回退，其他错误直接返回
type Resolver struct {
	Frame        browser.Locator
	Ready        browser.Locator
	FrameTimeout time.Duration
	ReadyTimeout time.Duration
}

// Resolve 返回工作文档；回退最多发生一次
func (r Resolver) Resolve(ctx context.Context, top browser.Document) (Resolution, error) {
	frame, err := r.tryFrame(ctx, top)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrStrategyExhausted, err)
	}
	if doc, ok := frame.Get(); ok {
		return Resolution{Doc: doc, Strategy: model.StrategyFrame}, nil
	}
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	return Resolution{Doc: top, Strategy: model.StrategyDirect}, nil
}

// tryFrame None 表示某个等待超时
func (r Resolver) tryFrame(ctx context.Context, top browser.Document) (mo.Option[browser.Document], error) {
	if r.Frame == "" {
		return mo.None[browser.Document](), nil
	}

	if err := waitBounded(ctx, top, r.Frame, browser.StateAttached, r.FrameTimeout); err != nil {
		return timeoutAsNone(err)
	}

	sub, err := top.SubDocument(ctx, r.Frame)
	if err != nil {
		return timeoutAsNone(err)
	}

	if r.Ready != "" {
		if err := waitBounded(ctx, sub, r.Ready, browser.StateAttached, r.ReadyTimeout); err != nil {
			return timeoutAsNone(err)
		}
	}
	return mo.Some(sub), nil
}

func waitBounded(ctx context.Context, doc browser.Document, loc browser.Locator, state browser.ElementState, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return doc.WaitForElement(ctx, loc, state, timeout)
}

func timeoutAsNone(err error) (mo.Option[browser.Document], error) {
	if browser.IsTimeout(err) {
		return mo.None[browser.Document](), nil
	}
	return mo.None[browser.Document](), err
}
