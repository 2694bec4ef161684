package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/config"
	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/pkg/response"
	"github.com/qs3c/place_rank_server/internal/ranking"
	"github.com/qs3c/place_rank_server/internal/repository"
	"github.com/qs3c/place_rank_server/internal/service"
	"github.com/qs3c/place_rank_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "unexpected data: %#v", resp.Data)
	return data
}

// recordingScheduler 只记录提交的任务，不执行
type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingScheduler) Submit(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, jobID)
	return nil
}

type stubExtractor struct {
	listing *model.ListingRecord
	err     error
}

func (s *stubExtractor) ExtractListing(_ context.Context, url string) (*model.ListingRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec := *s.listing
	rec.SourceURL = url
	return &rec, nil
}

func testListing() *model.ListingRecord {
	return &model.ListingRecord{
		Name:        "Downtown Cafe",
		Category:    "Cafe",
		Address:     "1 Main St",
		Phone:       "010-0000-0000",
		Hours:       "09:00-18:00",
		Rating:      "4.5",
		ReviewCount: "120",
		Description: "Coffee and pastries",
		Facilities:  []string{"Wi-Fi", "Parking"},
		Programs:    model.Unavailable(),
		Images:      []string{"interior"},
		Coupons:     model.Unavailable(),
		Keywords:    []string{"coffee"},
		Pricing:     []string{"Americano 4,000"},
		Strategy:    model.StrategyFrame,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Jobs: config.JobsConfig{MaxWorkers: 2, QueueSize: 10, DefaultConcurrency: 3},
		Ranking: config.RankingConfig{
			SearchURL:       "https://search.test/{query}?page={page}",
			SearchFrame:     "#searchIframe",
			ResultList:      "#list",
			ResultItem:      "li",
			ResultName:      ".name",
			FrameTimeoutMs:  50,
			ListTimeoutMs:   50,
			NameTimeoutMs:   50,
			PageTimeoutMs:   1000,
			DefaultMaxPages: 1,
		},
	}
}

// routeResults 为关键词的第一页搜索结果注册假页面
func routeResults(engine *testutil.FakeEngine, keyword string, names ...string) {
	frame := testutil.NewFakeDocument().With("#list", "").WithList("#list li .name", names...)
	engine.Route(fmt.Sprintf("https://search.test/%s?page=1", url.PathEscape(keyword)),
		testutil.NewFakeDocument().WithFrame("#searchIframe", frame))
}

type handlerDeps struct {
	store     *repository.MemoryJobStore
	scheduler *recordingScheduler
	extractor *stubExtractor
	engine    *testutil.FakeEngine
	ranker    *ranking.Ranker
	cfg       *config.Config
}

func setupJobService(t *testing.T) (*service.JobService, *handlerDeps) {
	t.Helper()

	cfg := testConfig()
	engine := testutil.NewFakeEngine()
	deps := &handlerDeps{
		store:     repository.NewMemoryJobStore(),
		scheduler: &recordingScheduler{},
		extractor: &stubExtractor{listing: testListing()},
		engine:    engine,
		ranker:    ranking.NewRanker(engine, cfg.Ranking, zap.NewNop()),
		cfg:       cfg,
	}
	svc := service.NewJobService(deps.store, deps.scheduler, deps.extractor, deps.ranker, cfg, zap.NewNop())
	return svc, deps
}
