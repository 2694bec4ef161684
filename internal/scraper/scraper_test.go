package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/pkg/browser"
	"github.com/qs3c/place_rank_server/internal/testutil"
)

const short = 50 * time.Millisecond

func TestExtract(t *testing.T) {
	doc := testutil.NewFakeDocument().
		With("#name", "  Downtown Cafe \n").
		WithNode("#broken", testutil.FakeNode{Err: errors.New("detached")}).
		WithNode("#slow", testutil.FakeNode{Text: "late", Delay: time.Second}).
		WithNode("#quick", testutil.FakeNode{Text: "soon", Delay: 5 * time.Millisecond})

	tests := []struct {
		name string
		loc  browser.Locator
		want string
	}{
		{name: "present element", loc: "#name", want: "Downtown Cafe"},
		{name: "delayed within budget", loc: "#quick", want: "soon"},
		{name: "missing element", loc: "#missing", want: "fallback"},
		{name: "element error", loc: "#broken", want: "fallback"},
		{name: "slower than timeout", loc: "#slow", want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(context.Background(), doc, tt.loc, browser.StateVisible, short, "fallback")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_NeverBlocksPastTimeout(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	doc := testutil.NewFakeDocument().
		WithNode("#gated", testutil.FakeNode{Text: "never", Gate: gate})

	start := time.Now()
	got := Extract(context.Background(), doc, "#gated", browser.StateAttached, short, model.NotAvailable)

	assert.Equal(t, model.NotAvailable, got)
	assert.Less(t, time.Since(start), short+100*time.Millisecond)
}

func TestExtract_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := testutil.NewFakeDocument().WithNode("#slow", testutil.FakeNode{Text: "x", Delay: time.Second})

	got := Extract(ctx, doc, "#slow", browser.StateAttached, time.Second, "def")
	assert.Equal(t, "def", got)
}

func TestExtractList(t *testing.T) {
	doc := testutil.NewFakeDocument().
		With(".fac", "").
		WithList(".fac span", "Wi-Fi", " ", "Parking").
		With(".price", "").
		WithList(".price li", "Americano 4,500", "Latte 5,000").
		With(".empty", "").
		WithList(".empty span", "", "  ")

	t.Run("inline items joined with comma", func(t *testing.T) {
		got := ExtractList(context.Background(), doc, ".fac", "span", browser.StateAttached, SepInline, short, "def")
		assert.Equal(t, "Wi-Fi, Parking", got)
	})

	t.Run("line items joined with newline", func(t *testing.T) {
		got := ExtractList(context.Background(), doc, ".price", "li", browser.StateAttached, SepLines, short, "def")
		assert.Equal(t, "Americano 4,500\nLatte 5,000", got)
	})

	t.Run("missing container", func(t *testing.T) {
		got := ExtractList(context.Background(), doc, ".nothing", "li", browser.StateAttached, SepInline, short, "def")
		assert.Equal(t, "def", got)
	})

	t.Run("only empty items", func(t *testing.T) {
		got := ExtractList(context.Background(), doc, ".empty", "span", browser.StateAttached, SepInline, short, "def")
		assert.Equal(t, "def", got)
	})

	t.Run("enumeration error", func(t *testing.T) {
		broken := testutil.NewFakeDocument().With(".fac", "")
		broken.ListErr = errors.New("boom")
		got := ExtractList(context.Background(), broken, ".fac", "span", browser.StateAttached, SepInline, short, "def")
		assert.Equal(t, "def", got)
	})
}

func TestExtractItems_SlowItemDoesNotBlock(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	doc := testutil.NewFakeDocument().With(".tags", "")
	doc.Lists[".tags span"] = []testutil.FakeNode{
		{Text: "first"},
		{Text: "stuck", Gate: gate},
		{Text: "third"},
	}

	start := time.Now()
	items, ok := ExtractItems(context.Background(), doc, ".tags", "span", browser.StateAttached, short).Get()

	require.True(t, ok)
	assert.Equal(t, []string{"first", "third"}, items)
	assert.Less(t, time.Since(start), short+100*time.Millisecond)
}

func TestExtractList_EnumerationIgnoringContext(t *testing.T) {
	doc := testutil.NewFakeDocument().With(".fac", "")
	doc.Lists[".fac span"] = []testutil.FakeNode{{Text: "Wi-Fi"}}
	doc.ListDelay = time.Second

	start := time.Now()
	got := ExtractList(context.Background(), doc, ".fac", "span", browser.StateAttached, SepInline, short, "def")

	assert.Equal(t, "def", got)
	assert.Less(t, time.Since(start), short+200*time.Millisecond)
}

func testResolver() Resolver {
	return Resolver{
		Frame:        "#entryIframe",
		Ready:        "#_title",
		FrameTimeout: short,
		ReadyTimeout: short,
	}
}

func TestResolver_FrameStrategy(t *testing.T) {
	frame := testutil.NewFakeDocument().With("#_title", "ready")
	top := testutil.NewFakeDocument().WithFrame("#entryIframe", frame)

	res, err := testResolver().Resolve(context.Background(), top)

	require.NoError(t, err)
	assert.Equal(t, model.StrategyFrame, res.Strategy)
	assert.Same(t, frame, res.Doc)
}

func TestResolver_FallsBackOnFrameTimeout(t *testing.T) {
	top := testutil.NewFakeDocument()

	res, err := testResolver().Resolve(context.Background(), top)

	require.NoError(t, err)
	assert.Equal(t, model.StrategyDirect, res.Strategy)
	assert.Same(t, top, res.Doc)
	// 只尝试一次 frame，没有重试
	assert.Equal(t, 1, top.WaitCount("#entryIframe"))
}

func TestResolver_FallsBackOnReadyTimeout(t *testing.T) {
	frame := testutil.NewFakeDocument()
	top := testutil.NewFakeDocument().WithFrame("#entryIframe", frame)

	res, err := testResolver().Resolve(context.Background(), top)

	require.NoError(t, err)
	assert.Equal(t, model.StrategyDirect, res.Strategy)
	assert.Same(t, top, res.Doc)
	assert.Equal(t, 1, frame.WaitCount("#_title"))
}

func TestResolver_NonTimeoutErrorsPropagate(t *testing.T) {
	t.Run("sub document unavailable", func(t *testing.T) {
		top := testutil.NewFakeDocument().WithFrame("#entryIframe", testutil.NewFakeDocument())
		top.FrameErr = browser.ErrClosed

		_, err := testResolver().Resolve(context.Background(), top)

		assert.ErrorIs(t, err, ErrStrategyExhausted)
		assert.ErrorIs(t, err, browser.ErrClosed)
	})

	t.Run("ready marker errors", func(t *testing.T) {
		frame := testutil.NewFakeDocument().
			WithNode("#_title", testutil.FakeNode{Err: browser.ErrClosed})
		top := testutil.NewFakeDocument().WithFrame("#entryIframe", frame)

		_, err := testResolver().Resolve(context.Background(), top)

		assert.ErrorIs(t, err, ErrStrategyExhausted)
	})
}

func testExtractionConfig() config.ExtractionConfig {
	return config.ExtractionConfig{
		FrameTimeoutMs:      50,
		FrameReadyTimeoutMs: 50,
		FieldTimeoutMs:      50,
		SectionTimeoutMs:    50,
		Selectors: config.ListingSelectors{
			Frame:          "#entryIframe",
			FrameReady:     "#_title",
			MainContent:    "#main",
			Name:           "#_title .name",
			Category:       "#_title .category",
			DirectName:     "h1",
			DirectCategory: ".category",
			Address:        ".addr",
			Phone:          ".phone",
			Hours:          ".hours",
			Rating:         ".rating",
			ReviewCount:    ".reviews",
			Description:    ".desc",
			Facilities:     ".fac",
			FacilityItem:   "span",
			Programs:       ".prog",
			ProgramItem:    "li",
			Images:         ".photo",
			ImageItem:      ".tab",
			Coupons:        ".coupon",
			CouponItem:     ".title",
			Keywords:       ".kw",
			KeywordItem:    "span",
			Pricing:        ".price",
			PricingItem:    "li",
		},
	}
}

func fullListing(doc *testutil.FakeDocument) *testutil.FakeDocument {
	return doc.
		With("#main .addr", "1 Main St").
		With("#main .phone", "02-123-4567").
		With("#main .hours", "09:00 - 21:00").
		With("#main .rating", "4.7").
		With("#main .reviews", "321").
		With("#main .desc", "Specialty coffee").
		With("#main .fac", "").
		WithList("#main .fac span", "Wi-Fi", "Parking").
		With("#main .price", "").
		WithList("#main .price li", "Americano 4,500", "Latte 5,000")
}

func setupExtractor(t *testing.T) (*ListingExtractor, *testutil.FakeEngine) {
	t.Helper()
	engine := testutil.NewFakeEngine()
	return NewListingExtractor(engine, testExtractionConfig(), time.Second, zap.NewNop()), engine
}

func TestExtractListing_FrameStrategy(t *testing.T) {
	x, engine := setupExtractor(t)

	frame := fullListing(testutil.NewFakeDocument()).
		With("#_title", "").
		With("#_title .name", "Downtown Cafe").
		With("#_title .category", "Cafe")
	engine.Route("https://example.com/place/1", testutil.NewFakeDocument().WithFrame("#entryIframe", frame))

	rec, err := x.ExtractListing(context.Background(), "https://example.com/place/1")

	require.NoError(t, err)
	assert.Equal(t, model.StrategyFrame, rec.Strategy)
	assert.Equal(t, "Downtown Cafe", rec.Name)
	assert.Equal(t, "Cafe", rec.Category)
	assert.Equal(t, "1 Main St", rec.Address)
	assert.Equal(t, "4.7", rec.Rating)
	assert.Equal(t, []string{"Wi-Fi", "Parking"}, rec.Facilities)
	assert.Equal(t, []string{"Americano 4,500", "Latte 5,000"}, rec.Pricing)
	assert.Equal(t, model.Unavailable(), rec.Coupons)
	assert.Equal(t, model.Unavailable(), rec.Programs)
	assert.Equal(t, "https://example.com/place/1", rec.SourceURL)
	assert.Equal(t, 1, engine.Opened())
	assert.Equal(t, 1, engine.Closed())

	state, ok := frame.WaitState("#main .fac")
	require.True(t, ok)
	assert.Equal(t, browser.StateVisible, state)
	state, ok = frame.WaitState("#main .price")
	require.True(t, ok)
	assert.Equal(t, browser.StateAttached, state)
}

func TestExtractListing_NilLogger(t *testing.T) {
	engine := testutil.NewFakeEngine()
	x := NewListingExtractor(engine, testExtractionConfig(), time.Second, nil)
	engine.Route("https://example.com/place/5", testutil.NewFakeDocument().With("h1", "Corner Bakery"))

	rec, err := x.ExtractListing(context.Background(), "https://example.com/place/5")

	require.NoError(t, err)
	assert.Equal(t, "Corner Bakery", rec.Name)
	assert.Equal(t, 1, engine.Closed())
}

func TestExtractListing_DirectFallback(t *testing.T) {
	x, engine := setupExtractor(t)

	// frame 存在但就绪标记永远不出现
	frame := testutil.NewFakeDocument().With("#_title .name", "Frame Name")
	top := fullListing(testutil.NewFakeDocument()).
		WithFrame("#entryIframe", frame).
		With("h1", "Downtown Cafe").
		With(".category", "Cafe")
	engine.Route("https://example.com/place/2", top)

	rec, err := x.ExtractListing(context.Background(), "https://example.com/place/2")

	require.NoError(t, err)
	assert.Equal(t, model.StrategyDirect, rec.Strategy)
	assert.Equal(t, "Downtown Cafe", rec.Name)
	assert.Equal(t, "Cafe", rec.Category)
	assert.Equal(t, "02-123-4567", rec.Phone)
	assert.Equal(t, 1, engine.Closed())
}

func TestExtractListing_DegradesToSentinels(t *testing.T) {
	x, engine := setupExtractor(t)

	top := testutil.NewFakeDocument().
		With("h1", "Corner Bakery").
		WithNode("#main .phone", testutil.FakeNode{Text: "late", Delay: time.Second})
	engine.Route("https://example.com/place/3", top)

	start := time.Now()
	rec, err := x.ExtractListing(context.Background(), "https://example.com/place/3")

	require.NoError(t, err)
	assert.Equal(t, "Corner Bakery", rec.Name)
	assert.Equal(t, model.NotAvailable, rec.Phone)
	assert.Equal(t, model.NotAvailable, rec.Address)
	assert.Equal(t, model.Unavailable(), rec.Facilities)
	assert.Contains(t, rec.MissingFields(), "phone")
	// 字段并发执行，总耗时约等于单个字段超时加上 frame 等待
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExtractListing_NameFromURL(t *testing.T) {
	x, engine := setupExtractor(t)
	engine.Route("https://map.example.com/place/Downtown%20Cafe", testutil.NewFakeDocument())

	rec, err := x.ExtractListing(context.Background(), "https://map.example.com/place/Downtown%20Cafe")

	require.NoError(t, err)
	assert.Equal(t, "Downtown Cafe", rec.Name)
}

func TestExtractListing_Failures(t *testing.T) {
	t.Run("navigation failure", func(t *testing.T) {
		x, engine := setupExtractor(t)
		engine.FailNavigation("https://example.com/down", testutil.ErrNavigation)

		rec, err := x.ExtractListing(context.Background(), "https://example.com/down")

		assert.Nil(t, rec)
		assert.ErrorIs(t, err, ErrExtractionFailed)
		assert.ErrorIs(t, err, ErrNavigationFailed)
		assert.Equal(t, 1, engine.Closed())
	})

	t.Run("page cannot be opened", func(t *testing.T) {
		x, engine := setupExtractor(t)
		engine.NewPageErr = errors.New("browser gone")

		_, err := x.ExtractListing(context.Background(), "https://example.com/x")

		assert.ErrorIs(t, err, ErrNavigationFailed)
		assert.Equal(t, 0, engine.Opened())
	})

	t.Run("strategy exhausted", func(t *testing.T) {
		x, engine := setupExtractor(t)
		top := testutil.NewFakeDocument().WithFrame("#entryIframe", testutil.NewFakeDocument())
		top.FrameErr = browser.ErrClosed
		engine.Route("https://example.com/gone", top)

		_, err := x.ExtractListing(context.Background(), "https://example.com/gone")

		assert.ErrorIs(t, err, ErrExtractionFailed)
		assert.ErrorIs(t, err, ErrStrategyExhausted)
		assert.Equal(t, 1, engine.Closed())
	})

	t.Run("cancelled context", func(t *testing.T) {
		x, engine := setupExtractor(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := x.ExtractListing(ctx, "https://example.com/place/4")

		assert.Error(t, err)
		assert.Equal(t, engine.Opened(), engine.Closed())
	})
}

func TestBusinessNameFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "place name", url: "https://map.naver.com/p/place/Downtown%20Cafe", want: "Downtown Cafe"},
		{name: "search term", url: "https://map.naver.com/p/search/bakery?c=15", want: "bakery"},
		{name: "numeric id", url: "https://m.place.naver.com/place/1234567/home", want: ""},
		{name: "no marker", url: "https://example.com/about", want: ""},
		{name: "trailing marker", url: "https://example.com/place", want: ""},
		{name: "invalid url", url: "://bad", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BusinessNameFromURL(tt.url))
		})
	}
}
