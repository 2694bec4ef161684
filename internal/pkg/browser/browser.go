// Package browser 定义抓取逻辑依赖的无头浏览器能力接口。
//
// 抓取与排名代码只通过 Engine / Page / Document / Element 访问渲染后的页面，
// 任何实现这组能力的引擎都可以替换（生产用 Playwright，测试用 testutil 中的假实现）。
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrTimeout 所有适配器都必须把等待超时映射为该错误，调用方据此决定是否降级
var ErrTimeout = errors.New("browser: timeout")

// ErrClosed 页面或文档句柄已被释放
var ErrClosed = errors.New("browser: handle closed")

// Locator 不透明的元素定位器（CSS 选择器字符串）
type Locator string

// Descendant 返回 l 下的后代定位器
func (l Locator) Descendant(child Locator) Locator {
	if l == "" {
		return child
	}
	if child == "" {
		return l
	}
	return Locator(strings.TrimSpace(string(l)) + " " + strings.TrimSpace(string(child)))
}

func (l Locator) String() string {
	return string(l)
}

// ElementState 等待元素达到的就绪状态
type ElementState string

const (
	StateAttached ElementState = "attached"
	StateVisible  ElementState = "visible"
)

// WaitPolicy 导航完成的判定方式
type WaitPolicy string

const (
	WaitLoad             WaitPolicy = "load"
	WaitDOMContentLoaded WaitPolicy = "domcontentloaded"
	WaitNetworkIdle      WaitPolicy = "networkidle"
)

// Element 枚举得到的单个元素
type Element interface {
	Text(ctx context.Context, timeout time.Duration) (string, error)
}

// Document 顶层文档或嵌入的子文档（iframe）
type Document interface {
	WaitForElement(ctx context.Context, loc Locator, state ElementState, timeout time.Duration) error
	ReadText(ctx context.Context, loc Locator, timeout time.Duration) (string, error)
	EnumerateMatches(ctx context.Context, loc Locator) ([]Element, error)
	SubDocument(ctx context.Context, frame Locator) (Document, error)
}

// Page 一个独占的浏览会话，调用方负责 Close
type Page interface {
	Document
	Navigate(ctx context.Context, url string, policy WaitPolicy, timeout time.Duration) error
	Close() error
}

// Engine 页面工厂
type Engine interface {
	NewPage(ctx context.Context) (Page, error)
}

// IsTimeout 判断错误是否为等待超时（含 context 超时）
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Millis 把配置中的毫秒数转换为 Duration，非正数时使用 fallback
func Millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
