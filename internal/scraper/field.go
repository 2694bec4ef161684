// Package scraper 从渲染后的业务详情页中抽取结构化数据。
//
// 每个字段独立设置超时和默认值：单个字段超时或失败只会让该字段退化为默认值，
// 不会影响其他字段，也不会让整个抽取失败。
package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/qs3c/place_rank_server/internal/pkg/browser"
)

type probeResult struct {
	text mo.Option[string]
	err  error
}

// probeText 等待元素就绪并读取文本。Some 表示读取成功，None 表示在 timeout 内未就绪；
// 其他错误原样返回。总耗时不超过 timeout
func probeText(ctx context.Context, doc browser.Document, loc browser.Locator, state browser.ElementState, timeout time.Duration) (mo.Option[string], error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline := time.Now().Add(timeout)

	done := make(chan probeResult, 1)
	go func() {
		if err := doc.WaitForElement(ctx, loc, state, timeout); err != nil {
			done <- probeResult{text: mo.None[string](), err: err}
			return
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			done <- probeResult{text: mo.None[string](), err: browser.ErrTimeout}
			return
		}
		text, err := doc.ReadText(ctx, loc, remaining)
		if err != nil {
			done <- probeResult{text: mo.None[string](), err: err}
			return
		}
		done <- probeResult{text: mo.Some(strings.TrimSpace(text))}
	}()

	// 适配器不响应 ctx 时也不会阻塞超过 timeout
	var res probeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = probeResult{text: mo.None[string](), err: ctx.Err()}
	}

	if res.err != nil {
		if browser.IsTimeout(res.err) {
			return mo.None[string](), nil
		}
		return mo.None[string](), res.err
	}
	return res.text, nil
}

// Extract 读取单个字段；超时或任何错误都返回 def，从不向外返回错误
func Extract(ctx context.Context, doc browser.Document, loc browser.Locator, state browser.ElementState, timeout time.Duration, def string) string {
	text, err := probeText(ctx, doc, loc, state, timeout)
	if err != nil {
		return def
	}
	return text.OrElse(def)
}
