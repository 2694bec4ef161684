package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/pkg/browser"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
)

// ListingExtractor 单个业务详情页的抽取流水线
type ListingExtractor struct {
	engine   browser.Engine
	sel      config.ListingSelectors
	resolver Resolver

	navTimeout     time.Duration
	fieldTimeout   time.Duration
	sectionTimeout time.Duration

	logger *zap.Logger
}

func NewListingExtractor(engine browser.Engine, cfg config.ExtractionConfig, navTimeout time.Duration, logger *zap.Logger) *ListingExtractor {
	sel := cfg.Selectors
	return &ListingExtractor{
		engine: engine,
		sel:    sel,
		resolver: Resolver{
			Frame:        browser.Locator(sel.Frame),
			Ready:        browser.Locator(sel.FrameReady),
			FrameTimeout: browser.Millis(cfg.FrameTimeoutMs, 10*time.Second),
			ReadyTimeout: browser.Millis(cfg.FrameReadyTimeoutMs, 20*time.Second),
		},
		navTimeout:     navTimeout,
		fieldTimeout:   browser.Millis(cfg.FieldTimeoutMs, 3*time.Second),
		sectionTimeout: browser.Millis(cfg.SectionTimeoutMs, 3*time.Second),
		logger:         applog.OrNop(logger),
	}
}

// ExtractListing 打开页面、解析文档结构并抽取全部字段。
// 页面在任何退出路径上都会被关闭
func (x *ListingExtractor) ExtractListing(ctx context.Context, pageURL string) (*model.ListingRecord, error) {
	start := time.Now()

	page, err := x.engine.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: failed to open page: %v", ErrExtractionFailed, ErrNavigationFailed, err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			x.logger.Warn("failed to close page", zap.String("url", pageURL), zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, pageURL, browser.WaitLoad, x.navTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrExtractionFailed, ErrNavigationFailed, err)
	}

	res, err := x.resolver.Resolve(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	rec := x.extractFields(ctx, res)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec.Strategy = res.Strategy
	rec.SourceURL = pageURL
	if !model.IsAvailable(rec.Name) {
		if name := BusinessNameFromURL(pageURL); name != "" {
			rec.Name = name
		}
	}

	x.logger.Info("listing extracted",
		zap.String("url", pageURL),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("completeness", rec.Completeness()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rec, nil
}

// extractFields 所有字段并发抽取，单个字段的超时只影响自身
func (x *ListingExtractor) extractFields(ctx context.Context, res Resolution) *model.ListingRecord {
	sel := x.sel
	doc := res.Doc
	anchor := browser.Locator(sel.MainContent)

	nameLoc, categoryLoc := browser.Locator(sel.Name), browser.Locator(sel.Category)
	if res.Strategy == model.StrategyDirect {
		nameLoc, categoryLoc = browser.Locator(sel.DirectName), browser.Locator(sel.DirectCategory)
	}

	rec := &model.ListingRecord{}
	var g errgroup.Group

	scalar := func(dst *string, loc browser.Locator) {
		g.Go(func() error {
			*dst = Extract(ctx, doc, loc, browser.StateAttached, x.fieldTimeout, model.NotAvailable)
			return nil
		})
	}
	list := func(dst *[]string, container, item string, state browser.ElementState, sep string) {
		g.Go(func() error {
			text := ExtractList(ctx, doc, anchor.Descendant(browser.Locator(container)), browser.Locator(item),
				state, sep, x.sectionTimeout, model.NotAvailable)
			*dst = model.SplitList(text, sep)
			return nil
		})
	}

	scalar(&rec.Name, nameLoc)
	scalar(&rec.Category, categoryLoc)
	scalar(&rec.Address, anchor.Descendant(browser.Locator(sel.Address)))
	scalar(&rec.Phone, anchor.Descendant(browser.Locator(sel.Phone)))
	scalar(&rec.Hours, anchor.Descendant(browser.Locator(sel.Hours)))
	scalar(&rec.Rating, anchor.Descendant(browser.Locator(sel.Rating)))
	scalar(&rec.ReviewCount, anchor.Descendant(browser.Locator(sel.ReviewCount)))
	scalar(&rec.Description, anchor.Descendant(browser.Locator(sel.Description)))

	// 设施标签需可见后再读
	list(&rec.Facilities, sel.Facilities, sel.FacilityItem, browser.StateVisible, SepInline)
	list(&rec.Programs, sel.Programs, sel.ProgramItem, browser.StateAttached, SepInline)
	list(&rec.Images, sel.Images, sel.ImageItem, browser.StateAttached, SepInline)
	list(&rec.Coupons, sel.Coupons, sel.CouponItem, browser.StateAttached, SepInline)
	list(&rec.Keywords, sel.Keywords, sel.KeywordItem, browser.StateAttached, SepInline)
	list(&rec.Pricing, sel.Pricing, sel.PricingItem, browser.StateAttached, SepLines)

	_ = g.Wait()
	return rec
}

// BusinessNameFromURL 从 /place/<name> 或 /search/<name> 路径中推断业务名称
func BusinessNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] != "place" && segments[i] != "search" {
			continue
		}
		name, err := url.PathUnescape(segments[i+1])
		if err != nil {
			return ""
		}
		name = strings.TrimSpace(name)
		// 纯数字是地点 ID，不是名称
		if name == "" || isDigits(name) {
			return ""
		}
		return name
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
