package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	pw "github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
)

// PlaywrightEngine 基于 playwright-go 的 Engine 实现，浏览器进程在首次使用时启动并复用
type PlaywrightEngine struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	runtime *pw.Playwright
	browser pw.Browser
}

func NewPlaywrightEngine(cfg config.BrowserConfig, logger *zap.Logger) *PlaywrightEngine {
	return &PlaywrightEngine{cfg: cfg, logger: applog.OrNop(logger)}
}

func (e *PlaywrightEngine) launch(ctx context.Context) (pw.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil && e.browser.IsConnected() {
		return e.browser, nil
	}

	attempts := e.cfg.LaunchAttempts
	if attempts <= 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			if e.runtime == nil {
				runtime, err := pw.Run()
				if err != nil {
					return fmt.Errorf("failed to start playwright: %w", err)
				}
				e.runtime = runtime
			}

			opts := pw.BrowserTypeLaunchOptions{Headless: pw.Bool(e.cfg.Headless)}
			if e.cfg.ExecutablePath != "" {
				opts.ExecutablePath = pw.String(e.cfg.ExecutablePath)
			}
			browser, err := e.runtime.Chromium.Launch(opts)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}
			e.browser = browser
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn("browser launch failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}

	e.logger.Info("browser launched", zap.Bool("headless", e.cfg.Headless))
	return e.browser, nil
}

// NewPage 为每次抽取/搜索打开独立的 BrowserContext，关闭页面时一并释放
func (e *PlaywrightEngine) NewPage(ctx context.Context) (Page, error) {
	browser, err := e.launch(ctx)
	if err != nil {
		return nil, err
	}

	bctx, err := browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &playwrightPage{
		playwrightDocument: playwrightDocument{frame: page.MainFrame()},
		page:               page,
		bctx:               bctx,
	}, nil
}

// Close 关闭浏览器进程
func (e *PlaywrightEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.browser != nil {
		errs = append(errs, e.browser.Close())
		e.browser = nil
	}
	if e.runtime != nil {
		errs = append(errs, e.runtime.Stop())
		e.runtime = nil
	}
	return errors.Join(errs...)
}

type playwrightPage struct {
	playwrightDocument
	page pw.Page
	bctx pw.BrowserContext
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, policy WaitPolicy, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, pw.PageGotoOptions{
		Timeout:   pw.Float(float64(timeout.Milliseconds())),
		WaitUntil: waitUntil(policy),
	})
	return mapError(err)
}

func (p *playwrightPage) Close() error {
	pageErr := p.page.Close()
	ctxErr := p.bctx.Close()
	return errors.Join(pageErr, ctxErr)
}

// playwrightDocument 同时用于主文档和 iframe，二者在 playwright 中都是 Frame
type playwrightDocument struct {
	frame pw.Frame
}

func (d *playwrightDocument) WaitForElement(ctx context.Context, loc Locator, state ElementState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.frame.WaitForSelector(string(loc), pw.FrameWaitForSelectorOptions{
		State:   selectorState(state),
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
	return mapError(err)
}

func (d *playwrightDocument) ReadText(ctx context.Context, loc Locator, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := d.frame.Locator(string(loc)).First().InnerText(pw.LocatorInnerTextOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
	return text, mapError(err)
}

func (d *playwrightDocument) EnumerateMatches(ctx context.Context, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locators, err := d.frame.Locator(string(loc)).All()
	if err != nil {
		return nil, mapError(err)
	}
	elems := make([]Element, len(locators))
	for i, l := range locators {
		elems[i] = playwrightElement{locator: l}
	}
	return elems, nil
}

func (d *playwrightDocument) SubDocument(ctx context.Context, frame Locator) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := d.frame.QuerySelector(string(frame))
	if err != nil {
		return nil, mapError(err)
	}
	if handle == nil {
		return nil, fmt.Errorf("frame %q not attached: %w", frame, ErrClosed)
	}
	content, err := contentFrame(handle)
	if err != nil {
		return nil, err
	}
	return &playwrightDocument{frame: content}, nil
}

// frameHandle pw.ElementHandle 中取 frame 所需的部分
type frameHandle interface {
	ContentFrame() (pw.Frame, error)
	Dispose() error
}

// contentFrame 取出 iframe 的内容文档，元素句柄在返回前释放
func contentFrame(handle frameHandle) (pw.Frame, error) {
	defer handle.Dispose() //nolint:errcheck
	content, err := handle.ContentFrame()
	if err != nil {
		return nil, mapError(err)
	}
	return content, nil
}

type playwrightElement struct {
	locator pw.Locator
}

func (e playwrightElement) Text(ctx context.Context, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.locator.InnerText(pw.LocatorInnerTextOptions{
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
	return text, mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pw.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, pw.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

func selectorState(state ElementState) *pw.WaitForSelectorState {
	if state == StateVisible {
		return pw.WaitForSelectorStateVisible
	}
	return pw.WaitForSelectorStateAttached
}

func waitUntil(policy WaitPolicy) *pw.WaitUntilState {
	switch policy {
	case WaitDOMContentLoaded:
		return pw.WaitUntilStateDomcontentloaded
	case WaitNetworkIdle:
		return pw.WaitUntilStateNetworkidle
	default:
		return pw.WaitUntilStateLoad
	}
}
