package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/qs3c/place_rank_server/internal/pkg/browser"
)

// 分节拼接使用的分隔符
const (
	SepInline = ", " // 设施标签等行内项
	SepLines  = "\n" // 价格表等逐行项
)

// ExtractItems 等待容器出现后并发读取所有匹配的子元素。
// 枚举与逐项读取共用同一个 timeout；容器未出现或没有非空项时返回 None
func ExtractItems(ctx context.Context, doc browser.Document, container, item browser.Locator, state browser.ElementState, timeout time.Duration) mo.Option[[]string] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	deadline := time.Now().Add(timeout)

	type matchResult struct {
		elems []browser.Element
		err   error
	}
	found := make(chan matchResult, 1)
	go func() {
		if err := doc.WaitForElement(ctx, container, state, timeout); err != nil {
			found <- matchResult{err: err}
			return
		}
		elems, err := doc.EnumerateMatches(ctx, container.Descendant(item))
		found <- matchResult{elems: elems, err: err}
	}()

	// 适配器不响应 ctx 时等待与枚举也受同一预算约束
	var elems []browser.Element
	select {
	case m := <-found:
		if m.err != nil {
			return mo.None[[]string]()
		}
		elems = m.elems
	case <-ctx.Done():
		return mo.None[[]string]()
	}
	if len(elems) == 0 {
		return mo.None[[]string]()
	}

	type itemText struct {
		idx  int
		text string
	}
	results := make(chan itemText, len(elems))
	for i, el := range elems {
		go func(i int, el browser.Element) {
			text, err := el.Text(ctx, time.Until(deadline))
			if err != nil {
				text = ""
			}
			results <- itemText{idx: i, text: strings.TrimSpace(text)}
		}(i, el)
	}

	// 超出预算仍未返回的元素直接丢弃，保留已读到的项
	texts := make([]string, len(elems))
collect:
	for range elems {
		select {
		case r := <-results:
			texts[r.idx] = r.text
		case <-ctx.Done():
			break collect
		}
	}

	items := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			items = append(items, t)
		}
	}
	if len(items) == 0 {
		return mo.None[[]string]()
	}
	return mo.Some(items)
}

// ExtractList 与 ExtractItems 相同，结果用 sep 拼接，失败时返回 def
func ExtractList(ctx context.Context, doc browser.Document, container, item browser.Locator, state browser.ElementState, sep string, timeout time.Duration, def string) string {
	items, ok := ExtractItems(ctx, doc, container, item, state, timeout).Get()
	if !ok {
		return def
	}
	return strings.Join(items, sep)
}
