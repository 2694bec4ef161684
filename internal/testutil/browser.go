package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qs3c/place_rank_server/internal/pkg/browser"
)

// ErrNavigation 假导航失败
var ErrNavigation = errors.New("fake navigation failed")

// FakeNode 假文档中的一个元素。
// Delay 之后元素出现；Never 表示永远不出现；Gate 非空时等待其关闭后才出现
type FakeNode struct {
	Text  string
	Delay time.Duration
	Never bool
	Err   error
	Gate  chan struct{}
}

// FakeDocument 按定位器字符串返回预设元素的文档
type FakeDocument struct {
	Nodes   map[browser.Locator]FakeNode
	Lists   map[browser.Locator][]FakeNode
	Frames  map[browser.Locator]*FakeDocument
	ListErr error
	// ListDelay EnumerateMatches 忽略 ctx 阻塞的时长
	ListDelay time.Duration
	// FrameErr 非空时 SubDocument 失败
	FrameErr error

	mu     sync.Mutex
	waits  map[browser.Locator]int
	states map[browser.Locator]browser.ElementState
}

func NewFakeDocument() *FakeDocument {
	return &FakeDocument{
		Nodes:  map[browser.Locator]FakeNode{},
		Lists:  map[browser.Locator][]FakeNode{},
		Frames: map[browser.Locator]*FakeDocument{},
	}
}

// With 添加一个立即可见的元素
func (d *FakeDocument) With(loc browser.Locator, text string) *FakeDocument {
	d.Nodes[loc] = FakeNode{Text: text}
	return d
}

// WithNode 添加自定义元素
func (d *FakeDocument) WithNode(loc browser.Locator, node FakeNode) *FakeDocument {
	d.Nodes[loc] = node
	return d
}

// WithList 添加可枚举的元素列表；等待该定位器时以首个元素为准
func (d *FakeDocument) WithList(loc browser.Locator, texts ...string) *FakeDocument {
	nodes := make([]FakeNode, len(texts))
	for i, t := range texts {
		nodes[i] = FakeNode{Text: t}
	}
	d.Lists[loc] = nodes
	return d
}

// WithFrame 添加嵌入子文档
func (d *FakeDocument) WithFrame(loc browser.Locator, frame *FakeDocument) *FakeDocument {
	d.Nodes[loc] = FakeNode{}
	d.Frames[loc] = frame
	return d
}

// WaitCount 某定位器被等待的次数
func (d *FakeDocument) WaitCount(loc browser.Locator) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waits[loc]
}

// WaitState 返回最近一次等待该定位器时使用的就绪状态
func (d *FakeDocument) WaitState(loc browser.Locator) (browser.ElementState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.states[loc]
	return state, ok
}

func (d *FakeDocument) recordWait(loc browser.Locator, state browser.ElementState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.waits == nil {
		d.waits = map[browser.Locator]int{}
		d.states = map[browser.Locator]browser.ElementState{}
	}
	d.waits[loc]++
	d.states[loc] = state
}

func (d *FakeDocument) lookup(loc browser.Locator) (FakeNode, bool) {
	if n, ok := d.Nodes[loc]; ok {
		return n, true
	}
	if items, ok := d.Lists[loc]; ok && len(items) > 0 {
		return items[0], true
	}
	return FakeNode{}, false
}

// await 模拟浏览器等待：出现则返回 nil，超时返回 browser.ErrTimeout
func await(ctx context.Context, node FakeNode, present bool, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if !present || node.Never {
		select {
		case <-timer.C:
			return browser.ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if node.Gate != nil {
		select {
		case <-node.Gate:
		case <-timer.C:
			return browser.ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if node.Delay > 0 {
		if node.Delay > timeout {
			select {
			case <-timer.C:
				return browser.ErrTimeout
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-time.After(node.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return node.Err
}

func (d *FakeDocument) WaitForElement(ctx context.Context, loc browser.Locator, state browser.ElementState, timeout time.Duration) error {
	d.recordWait(loc, state)
	node, ok := d.lookup(loc)
	return await(ctx, node, ok, timeout)
}

func (d *FakeDocument) ReadText(ctx context.Context, loc browser.Locator, timeout time.Duration) (string, error) {
	node, ok := d.lookup(loc)
	if err := await(ctx, node, ok, timeout); err != nil {
		return "", err
	}
	return node.Text, nil
}

func (d *FakeDocument) EnumerateMatches(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.ListDelay > 0 {
		time.Sleep(d.ListDelay)
	}
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	nodes := d.Lists[loc]
	elems := make([]browser.Element, len(nodes))
	for i, n := range nodes {
		elems[i] = fakeElement{node: n}
	}
	return elems, nil
}

func (d *FakeDocument) SubDocument(ctx context.Context, frame browser.Locator) (browser.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.FrameErr != nil {
		return nil, d.FrameErr
	}
	sub, ok := d.Frames[frame]
	if !ok {
		return nil, fmt.Errorf("frame %s: %w", frame, browser.ErrClosed)
	}
	return sub, nil
}

type fakeElement struct {
	node FakeNode
}

func (e fakeElement) Text(ctx context.Context, timeout time.Duration) (string, error) {
	if err := await(ctx, e.node, true, timeout); err != nil {
		return "", err
	}
	return e.node.Text, nil
}

// FakeEngine 按 URL 路由到假文档
type FakeEngine struct {
	mu      sync.Mutex
	routes  map[string]*FakeDocument
	navErrs map[string]error
	visited []string

	NewPageErr error
	opened     atomic.Int32
	closed     atomic.Int32
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		routes:  map[string]*FakeDocument{},
		navErrs: map[string]error{},
	}
}

// Route 注册 URL 对应的文档
func (e *FakeEngine) Route(url string, doc *FakeDocument) *FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[url] = doc
	return e
}

// FailNavigation 让指定 URL 导航失败
func (e *FakeEngine) FailNavigation(url string, err error) *FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navErrs[url] = err
	return e
}

// Visited 按顺序返回访问过的 URL
func (e *FakeEngine) Visited() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.visited...)
}

func (e *FakeEngine) Opened() int { return int(e.opened.Load()) }
func (e *FakeEngine) Closed() int { return int(e.closed.Load()) }

func (e *FakeEngine) NewPage(ctx context.Context) (browser.Page, error) {
	if e.NewPageErr != nil {
		return nil, e.NewPageErr
	}
	e.opened.Add(1)
	return &fakePage{engine: e, current: NewFakeDocument()}, nil
}

type fakePage struct {
	engine  *FakeEngine
	current *FakeDocument
	closed  bool
}

func (p *fakePage) Navigate(ctx context.Context, url string, _ browser.WaitPolicy, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := p.engine
	e.mu.Lock()
	e.visited = append(e.visited, url)
	navErr := e.navErrs[url]
	doc, ok := e.routes[url]
	e.mu.Unlock()

	if navErr != nil {
		return navErr
	}
	if !ok {
		doc = NewFakeDocument()
	}
	p.current = doc
	return nil
}

func (p *fakePage) Close() error {
	if !p.closed {
		p.closed = true
		p.engine.closed.Add(1)
	}
	return nil
}

func (p *fakePage) WaitForElement(ctx context.Context, loc browser.Locator, state browser.ElementState, timeout time.Duration) error {
	return p.current.WaitForElement(ctx, loc, state, timeout)
}

func (p *fakePage) ReadText(ctx context.Context, loc browser.Locator, timeout time.Duration) (string, error) {
	return p.current.ReadText(ctx, loc, timeout)
}

func (p *fakePage) EnumerateMatches(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	return p.current.EnumerateMatches(ctx, loc)
}

func (p *fakePage) SubDocument(ctx context.Context, frame browser.Locator) (browser.Document, error) {
	return p.current.SubDocument(ctx, frame)
}
