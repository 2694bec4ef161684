package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/internal/model"
	"github.com/qs3c/place_rank_server/internal/model/dto"
	"github.com/qs3c/place_rank_server/internal/pkg/response"
	"github.com/qs3c/place_rank_server/internal/service"
	"github.com/qs3c/place_rank_server/internal/worker"
)

func setupJobRouter(t *testing.T) (*gin.Engine, *handlerDeps) {
	t.Helper()

	svc, deps := setupJobService(t)
	handler := NewJobHandler(svc)

	router := gin.New()
	router.POST("/jobs/ranking", handler.CreateRanking)
	router.POST("/jobs/integrated", handler.CreateIntegrated)
	router.GET("/jobs", handler.List)
	router.GET("/jobs/:id", handler.Get)
	router.GET("/jobs/:id/results", handler.Results)
	router.DELETE("/jobs/:id", handler.Delete)
	return router, deps
}

func rankingRequest() dto.RankingJobRequest {
	return dto.RankingJobRequest{
		TargetBusiness: "Downtown Cafe",
		Keywords:       []string{"coffee", "bakery"},
		MaxPages:       3,
	}
}

func TestJobHandler_CreateRanking_Success(t *testing.T) {
	router, deps := setupJobRouter(t)

	w := performRequest(router, "POST", "/jobs/ranking", rankingRequest())
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.NotEmpty(t, data["job_id"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "ranking", data["kind"])
	assert.Len(t, deps.scheduler.ids, 1)
}

func TestJobHandler_CreateRanking_ParamError(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing body fields", map[string]interface{}{}},
		{"too many pages", dto.RankingJobRequest{TargetBusiness: "Cafe", Keywords: []string{"a"}, MaxPages: 9}},
		{"empty keyword", dto.RankingJobRequest{TargetBusiness: "Cafe", Keywords: []string{""}}},
		{"bad location", map[string]interface{}{
			"target_business": "Cafe",
			"keywords":        []string{"a"},
			"location":        map[string]interface{}{"type": "gps"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, deps := setupJobRouter(t)

			w := performRequest(router, "POST", "/jobs/ranking", tt.body)
			resp := parseResponse(t, w)

			assert.Equal(t, response.CodeParamError, resp.Code)
			assert.Equal(t, 0, deps.store.Len())
		})
	}
}

func TestJobHandler_CreateRanking_QueueFull(t *testing.T) {
	router, deps := setupJobRouter(t)
	deps.scheduler.err = worker.ErrQueueFull

	w := performRequest(router, "POST", "/jobs/ranking", rankingRequest())
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeServiceBusy, resp.Code)
	assert.Equal(t, 0, deps.store.Len())
}

func TestJobHandler_CreateIntegrated(t *testing.T) {
	router, _ := setupJobRouter(t)

	w := performRequest(router, "POST", "/jobs/integrated", dto.IntegratedJobRequest{
		PlaceURL:       "https://map.example.com/place/1",
		TargetBusiness: "Downtown Cafe",
		Keywords:       []string{"coffee"},
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "integrated", dataMap(t, resp)["kind"])
}

func TestJobHandler_CreateIntegrated_MissingURL(t *testing.T) {
	router, _ := setupJobRouter(t)

	w := performRequest(router, "POST", "/jobs/integrated", map[string]interface{}{
		"keywords": []string{"coffee"},
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestJobHandler_Get_NotFound(t *testing.T) {
	router, _ := setupJobRouter(t)

	w := performRequest(router, "GET", "/jobs/unknown", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_Get(t *testing.T) {
	router, _ := setupJobRouter(t)
	created := dataMap(t, parseResponse(t, performRequest(router, "POST", "/jobs/integrated", dto.IntegratedJobRequest{
		PlaceURL:       "https://map.example.com/place/1",
		TargetBusiness: "Downtown Cafe",
		Keywords:       []string{"coffee", "bakery"},
	})))

	w := performRequest(router, "GET", "/jobs/"+created["job_id"].(string), nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(0), data["progress"])
	assert.Equal(t, float64(2), data["total_keywords"])
	phases, ok := data["phases"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pending", phases["extraction"])
	assert.Equal(t, "pending", phases["ranking"])
	assert.NotContains(t, data, "results")
}

func TestJobHandler_Results_NotComplete(t *testing.T) {
	router, _ := setupJobRouter(t)
	created := dataMap(t, parseResponse(t, performRequest(router, "POST", "/jobs/ranking", rankingRequest())))

	w := performRequest(router, "GET", "/jobs/"+created["job_id"].(string)+"/results", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeJobNotComplete, resp.Code)
	assert.Equal(t, "pending", dataMap(t, resp)["status"])
}

func TestJobHandler_Results_NotFound(t *testing.T) {
	router, _ := setupJobRouter(t)

	w := performRequest(router, "GET", "/jobs/unknown/results", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_Delete(t *testing.T) {
	router, _ := setupJobRouter(t)
	created := dataMap(t, parseResponse(t, performRequest(router, "POST", "/jobs/ranking", rankingRequest())))
	path := "/jobs/" + created["job_id"].(string)

	resp := parseResponse(t, performRequest(router, "DELETE", path, nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, service.ActionCancelled, dataMap(t, resp)["action"])

	status := dataMap(t, parseResponse(t, performRequest(router, "GET", path, nil)))
	assert.Equal(t, "cancelled", status["status"])

	resp = parseResponse(t, performRequest(router, "DELETE", path, nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, service.ActionDeleted, dataMap(t, resp)["action"])

	resp = parseResponse(t, performRequest(router, "GET", path, nil))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)

	resp = parseResponse(t, performRequest(router, "DELETE", path, nil))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_List(t *testing.T) {
	router, _ := setupJobRouter(t)
	for i := 0; i < 3; i++ {
		performRequest(router, "POST", "/jobs/ranking", rankingRequest())
	}

	resp := parseResponse(t, performRequest(router, "GET", "/jobs?page=1&page_size=2", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.Equal(t, float64(3), data["total"])
	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	assert.Equal(t, "ranking", first["kind"])
	assert.Equal(t, "pending", first["status"])

	resp = parseResponse(t, performRequest(router, "GET", "/jobs?status=completed", nil))
	assert.Equal(t, float64(0), dataMap(t, resp)["total"])
}

// 提交到真实 worker 池，轮询状态直到完成
func TestJobHandler_EndToEnd(t *testing.T) {
	cfg := testConfig()
	_, deps := setupJobService(t)
	routeResults(deps.engine, "coffee", "Bean House", "Downtown Cafe")
	routeResults(deps.engine, "bakery", "Bread Co")

	processor := worker.NewProcessor(deps.store, deps.extractor, deps.ranker, nil, nil, cfg, zap.NewNop())
	pool := worker.NewPool(processor, cfg.Jobs, zap.NewNop())
	pool.Start(context.Background())
	defer pool.Stop()

	svc := service.NewJobService(deps.store, pool, deps.extractor, deps.ranker, cfg, zap.NewNop())
	handler := NewJobHandler(svc)
	router := gin.New()
	router.POST("/jobs/integrated", handler.CreateIntegrated)
	router.GET("/jobs/:id", handler.Get)
	router.GET("/jobs/:id/results", handler.Results)

	created := dataMap(t, parseResponse(t, performRequest(router, "POST", "/jobs/integrated", dto.IntegratedJobRequest{
		PlaceURL:       "https://map.example.com/place/1",
		TargetBusiness: "Downtown Cafe",
		Keywords:       []string{"coffee", "bakery"},
	})))
	id := created["job_id"].(string)

	require.Eventually(t, func() bool {
		var resp struct {
			Data dto.JobStatusResponse `json:"data"`
		}
		w := performRequest(router, "GET", "/jobs/"+id, nil)
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.Data.Status == model.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp := parseResponse(t, performRequest(router, "GET", "/jobs/"+id+"/results", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	results := data["results"].(map[string]interface{})
	listing := results["listing"].(map[string]interface{})
	assert.Equal(t, "Downtown Cafe", listing["name"])

	rankings := results["rankings"].([]interface{})
	require.Len(t, rankings, 2)
	coffee := rankings[0].(map[string]interface{})
	bakery := rankings[1].(map[string]interface{})
	assert.Equal(t, "coffee", coffee["keyword"])
	assert.Equal(t, true, coffee["found"])
	assert.Equal(t, float64(2), coffee["rank"])
	assert.Equal(t, "bakery", bakery["keyword"])
	assert.Equal(t, false, bakery["found"])
	assert.Nil(t, bakery["rank"])

	summary := data["summary"].(map[string]interface{})
	assert.Contains(t, summary, "place_summary")
	assert.Contains(t, summary, "ranking_summary")
}

func TestWriteSubmitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid", service.ErrInvalidRequest, response.CodeParamError},
		{"busy", service.ErrServiceBusy, response.CodeServiceBusy},
		{"other", errors.New("boom"), response.CodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/test", func(c *gin.Context) { writeSubmitError(c, tt.err) })

			resp := parseResponse(t, performRequest(router, "GET", "/test", nil))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}
