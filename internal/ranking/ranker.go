// Package ranking 在搜索结果页中查找目标业务的排名
package ranking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/pkg/browser"
	applog "github.com/qs3c/place_rank_server/internal/pkg/logger"
	"github.com/qs3c/place_rank_server/internal/scraper"
)

// ErrKeywordSweepFailed 单个关键词的搜索失败，只记录在该关键词的结果中
var ErrKeywordSweepFailed = errors.New("keyword sweep failed")

// MaxPages 单个关键词最多检查的结果页数
const MaxPages = 5

// Ranker 逐页扫描搜索结果，命中目标即停止
type Ranker struct {
	engine   browser.Engine
	cfg      config.RankingConfig
	resolver scraper.Resolver

	pageTimeout time.Duration
	listTimeout time.Duration
	nameTimeout time.Duration

	logger *zap.Logger
}

func NewRanker(engine browser.Engine, cfg config.RankingConfig, logger *zap.Logger) *Ranker {
	listTimeout := browser.Millis(cfg.ListTimeoutMs, 10*time.Second)
	return &Ranker{
		engine: engine,
		cfg:    cfg,
		resolver: scraper.Resolver{
			Frame:        browser.Locator(cfg.SearchFrame),
			Ready:        browser.Locator(cfg.ResultList),
			FrameTimeout: browser.Millis(cfg.FrameTimeoutMs, 10*time.Second),
			ReadyTimeout: listTimeout,
		},
		pageTimeout: browser.Millis(cfg.PageTimeoutMs, time.Minute),
		listTimeout: listTimeout,
		nameTimeout: browser.Millis(cfg.NameTimeoutMs, time.Second),
		logger:      applog.OrNop(logger),
	}
}

// ClampPages 把页数限制在 1..MaxPages，非正数使用 fallback
func ClampPages(pages, fallback int) int {
	if pages <= 0 {
		pages = fallback
	}
	if pages < 1 {
		return 1
	}
	if pages > MaxPages {
		return MaxPages
	}
	return pages
}

// RankFor 搜索 keyword 并返回 target 首次出现的 1 起始位置。
// 失败时返回的结果仍带有关键词和耗时，错误包装 ErrKeywordSweepFailed
func (r *Ranker) RankFor(ctx context.Context, keyword, target string, maxPages int, loc *model.Location) (model.RankingResult, error) {
	start := time.Now()
	result := model.RankingResult{Keyword: keyword, TargetBusiness: target}
	result.MarkNotFound()

	rank, scanned, total, pages, err := r.scan(ctx, keyword, target, ClampPages(maxPages, r.cfg.DefaultMaxPages), loc)
	result.PagesChecked = pages
	result.ProcessingTime = time.Since(start).Seconds()
	if err != nil {
		err = fmt.Errorf("%w: %q: %w", ErrKeywordSweepFailed, keyword, err)
		result.Error = err.Error()
		return result, err
	}

	result.TotalResults = max(total, scanned)
	if rank > 0 {
		result.MarkFound(rank)
	}

	r.logger.Debug("keyword ranked",
		zap.String("keyword", keyword),
		zap.Bool("found", result.Found),
		zap.Int("rank", rank),
		zap.Int("pages", pages),
	)
	return result, nil
}

// scan 返回命中位置（0 表示未命中）、已扫描条目数、页面显示的结果总数和已检查页数
func (r *Ranker) scan(ctx context.Context, keyword, target string, maxPages int, loc *model.Location) (rank, scanned, total, pages int, err error) {
	page, err := r.engine.NewPage(ctx)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			r.logger.Warn("failed to close page", zap.String("keyword", keyword), zap.Error(cerr))
		}
	}()

	itemNames := browser.Locator(r.cfg.ResultList).
		Descendant(browser.Locator(r.cfg.ResultItem)).
		Descendant(browser.Locator(r.cfg.ResultName))

	for p := 1; p <= maxPages; p++ {
		if err := ctx.Err(); err != nil {
			return 0, scanned, total, pages, err
		}

		searchURL := r.SearchURL(keyword, p, loc)
		if err := page.Navigate(ctx, searchURL, browser.WaitDOMContentLoaded, r.pageTimeout); err != nil {
			return 0, scanned, total, pages, fmt.Errorf("failed to open search page %d: %w", p, err)
		}
		pages = p

		res, err := r.resolver.Resolve(ctx, page)
		if err != nil {
			return 0, scanned, total, pages, err
		}
		doc := res.Doc

		if p == 1 && r.cfg.ResultCount != "" {
			text := scraper.Extract(ctx, doc, browser.Locator(r.cfg.ResultCount), browser.StateAttached, r.nameTimeout, "")
			total = parseCount(text)
		}

		waitCtx, cancel := context.WithTimeout(ctx, r.listTimeout)
		err = doc.WaitForElement(waitCtx, browser.Locator(r.cfg.ResultList), browser.StateAttached, r.listTimeout)
		cancel()
		if err != nil {
			if browser.IsTimeout(err) {
				// 没有结果列表，视为结果已用尽
				break
			}
			return 0, scanned, total, pages, err
		}

		names, err := doc.EnumerateMatches(ctx, itemNames)
		if err != nil {
			return 0, scanned, total, pages, fmt.Errorf("failed to list results: %w", err)
		}
		if len(names) == 0 {
			break
		}

		for i, el := range names {
			name, err := el.Text(ctx, r.nameTimeout)
			if err != nil {
				continue
			}
			if Matches(name, target) {
				return scanned + i + 1, scanned + len(names), total, pages, nil
			}
		}
		scanned += len(names)
	}

	return 0, scanned, total, pages, nil
}

// SearchURL 填充搜索地址模板。坐标填入 {lat}/{lng}，模板没有 {lat} 时以 lat、lng 查询参数附加；
// 地址或地点名称作为地区前缀并入查询词
func (r *Ranker) SearchURL(keyword string, page int, loc *model.Location) string {
	query := keyword
	if area := locationArea(loc); area != "" {
		query = area + " " + keyword
	}

	latText, lngText := "", ""
	lat, lng, hasCoords := locationCoords(loc)
	if hasCoords {
		latText = strconv.FormatFloat(lat, 'f', -1, 64)
		lngText = strconv.FormatFloat(lng, 'f', -1, 64)
	}

	out := strings.NewReplacer(
		"{query}", url.PathEscape(query),
		"{page}", strconv.Itoa(page),
		"{lat}", latText,
		"{lng}", lngText,
	).Replace(r.cfg.SearchURL)

	if hasCoords && !strings.Contains(r.cfg.SearchURL, "{lat}") {
		if u, err := url.Parse(out); err == nil {
			q := u.Query()
			q.Set("lat", latText)
			q.Set("lng", lngText)
			u.RawQuery = q.Encode()
			out = u.String()
		}
	}
	return out
}

// locationCoords 坐标类型直接取 lat/lng；链接类型从链接的 lat、lng 查询参数中读取
func locationCoords(loc *model.Location) (lat, lng float64, ok bool) {
	if loc == nil {
		return 0, 0, false
	}
	switch loc.Type {
	case model.LocationCoords:
		if loc.Lat != nil && loc.Lng != nil {
			return *loc.Lat, *loc.Lng, true
		}
	case model.LocationURL:
		u, err := url.Parse(loc.URL)
		if err != nil {
			return 0, 0, false
		}
		q := u.Query()
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
		if latErr == nil && lngErr == nil {
			return lat, lng, true
		}
	}
	return 0, 0, false
}

// locationArea 地址类型优先用地址，其次用名称；不带坐标的链接类型用名称
func locationArea(loc *model.Location) string {
	if loc == nil {
		return ""
	}
	switch loc.Type {
	case model.LocationAddress:
		if a := strings.TrimSpace(loc.Address); a != "" {
			return a
		}
		return strings.TrimSpace(loc.Name)
	case model.LocationURL:
		if _, _, ok := locationCoords(loc); ok {
			return ""
		}
		return strings.TrimSpace(loc.Name)
	}
	return ""
}

// Matches 忽略大小写和空白后，结果名称包含目标名称即视为命中
func Matches(name, target string) bool {
	t := normalize(target)
	if t == "" {
		return false
	}
	return strings.Contains(normalize(name), t)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// parseCount 从 "1,234" "共 56 条" 之类的文本中取出数字
func parseCount(text string) int {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}
