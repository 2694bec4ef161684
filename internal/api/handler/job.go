package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/place_rank_server/internal/model/dto"
	"github.com/qs3c/place_rank_server/internal/pkg/response"
	"github.com/qs3c/place_rank_server/internal/repository"
	"github.com/qs3c/place_rank_server/internal/service"
)

type JobHandler struct {
	jobService *service.JobService
}

func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{
		jobService: jobService,
	}
}

// CreateRanking 提交排名任务
// POST /api/v1/jobs/ranking
func (h *JobHandler) CreateRanking(c *gin.Context) {
	var req dto.RankingJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.jobService.SubmitRanking(&req)
	if err != nil {
		writeSubmitError(c, err)
		return
	}

	response.SuccessWithMessage(c, "任务已提交", resp)
}

// CreateIntegrated 提交综合分析任务
// POST /api/v1/jobs/integrated
func (h *JobHandler) CreateIntegrated(c *gin.Context) {
	var req dto.IntegratedJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.jobService.SubmitIntegrated(&req)
	if err != nil {
		writeSubmitError(c, err)
		return
	}

	response.SuccessWithMessage(c, "任务已提交", resp)
}

func writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrServiceBusy):
		response.BusyError(c, "")
	default:
		response.ServerError(c, "")
	}
}

// Get 获取任务状态
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	status, err := h.jobService.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			response.NotFoundError(c, "任务不存在")
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, status)
}

// Results 获取任务结果
// GET /api/v1/jobs/:id/results
func (h *JobHandler) Results(c *gin.Context) {
	id := c.Param("id")
	results, err := h.jobService.Results(id)
	if err != nil {
		var nc *service.NotCompleteError
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			response.NotFoundError(c, "任务不存在")
		case errors.As(err, &nc):
			response.JobNotCompleteError(c, "", dto.JobNotCompleteData{
				JobID:    id,
				Status:   nc.Status,
				Progress: nc.Progress,
			})
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, results)
}

// Delete 取消进行中的任务，或删除已结束的任务
// DELETE /api/v1/jobs/:id
func (h *JobHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	action, err := h.jobService.CancelOrDelete(id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			response.NotFoundError(c, "任务不存在")
			return
		}
		response.ServerError(c, "")
		return
	}

	message := "任务已取消"
	if action == service.ActionDeleted {
		message = "任务已删除"
	}
	response.SuccessWithMessage(c, message, dto.DeleteJobResponse{JobID: id, Action: action})
}

// List 获取任务列表
// GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	status := c.Query("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items := h.jobService.List()
	if status != "" {
		filtered := items[:0]
		for _, item := range items {
			if string(item.Status) == status {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	response.SuccessPage(c, int64(total), page, pageSize, items[start:end])
}
