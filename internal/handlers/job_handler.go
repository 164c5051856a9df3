package handlers

import (
	"net/http"
	"strconv"

	"restorify/internal/services"

	"github.com/gin-gonic/gin"
)

// JobHandler 修复工程与干燥记录接口
type JobHandler struct {
	jobs          *services.JobService
	notifications *services.NotificationService
}

func NewJobHandler(jobs *services.JobService, notifications *services.NotificationService) *JobHandler {
	return &JobHandler{jobs: jobs, notifications: notifications}
}

// CreateJob 创建修复工程
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req services.JobCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create job", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ListJobs 工程列表，支持 ?status= 过滤
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.ListJobs(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list jobs", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// JobStatusRequest 状态变更请求
type JobStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateJobStatus 更新工程状态
func (h *JobHandler) UpdateJobStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req JobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	job, err := h.jobs.UpdateJobStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		status := http.StatusInternalServerError
		if err.Error() == "job not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update job", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ChamberRequest 创建干燥分区请求
type ChamberRequest struct {
	Name      string  `json:"name" binding:"required"`
	TargetGPP float64 `json:"target_gpp"`
}

// CreateChamber 为工程添加干燥分区
func (h *JobHandler) CreateChamber(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req ChamberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	chamber, err := h.jobs.CreateChamber(c.Request.Context(), id, req.Name, req.TargetGPP)
	if err != nil {
		status := http.StatusBadRequest
		if err.Error() == "job not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to create chamber", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, chamber)
}

// AddDryingLog 记录一次干湿度读数
func (h *JobHandler) AddDryingLog(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req services.DryingLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	log, err := h.jobs.AddDryingLog(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if err.Error() == "chamber not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to add drying log", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, log)
}

// ListDryingLogs 分区读数列表
func (h *JobHandler) ListDryingLogs(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	logs, err := h.jobs.ListDryingLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list drying logs", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// ListNotifications 通知列表，支持 ?user_id= 和 ?limit=
func (h *JobHandler) ListNotifications(c *gin.Context) {
	var userID *uint
	if v := c.Query("user_id"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid user_id", Message: err.Error()})
			return
		}
		u := uint(parsed)
		userID = &u
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.notifications.ListNotifications(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list notifications", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// RegisterJobRoutes 注册路由
func RegisterJobRoutes(r *gin.RouterGroup, handler *JobHandler) {
	jobs := r.Group("/jobs")
	{
		jobs.POST("", handler.CreateJob)
		jobs.GET("", handler.ListJobs)
		jobs.PUT(":id/status", handler.UpdateJobStatus)
		jobs.POST(":id/chambers", handler.CreateChamber)
	}
	chambers := r.Group("/chambers")
	{
		chambers.POST(":id/logs", handler.AddDryingLog)
		chambers.GET(":id/logs", handler.ListDryingLogs)
	}
	r.GET("/notifications", handler.ListNotifications)
}
