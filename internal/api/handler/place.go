package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/place_rank_server/internal/model/dto"
	"github.com/qs3c/place_rank_server/internal/pkg/response"
	"github.com/qs3c/place_rank_server/internal/service"
)

// PlaceHandler 同步分析接口，请求在浏览器操作完成前保持连接
type PlaceHandler struct {
	jobService *service.JobService
	logger     *zap.Logger
}

func NewPlaceHandler(jobService *service.JobService, logger *zap.Logger) *PlaceHandler {
	return &PlaceHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// Analyze 抽取单个详情页
// POST /api/v1/places/analyze
func (h *PlaceHandler) Analyze(c *gin.Context) {
	var req dto.PlaceAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.jobService.AnalyzePlace(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			response.ParamError(c, err.Error())
			return
		}
		h.logger.Warn("place analysis failed", zap.String("url", req.URL), zap.Error(err))
		response.ServerError(c, "详情页分析失败")
		return
	}

	response.Success(c, resp)
}

// CheckRanking 检查关键词排名
// POST /api/v1/rankings/check
func (h *PlaceHandler) CheckRanking(c *gin.Context) {
	var req dto.RankingJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.jobService.CheckRanking(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			response.ParamError(c, err.Error())
			return
		}
		h.logger.Warn("ranking check failed", zap.String("target", req.TargetBusiness), zap.Error(err))
		response.ServerError(c, "排名查询失败")
		return
	}

	response.Success(c, resp)
}
