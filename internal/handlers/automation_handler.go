package handlers

import (
	"net/http"
	"strconv"

	"restorify/internal/services"

	"github.com/gin-gonic/gin"
)

// AutomationHandler 管理自动化规则与执行记录
// 说明：条件/动作由前端以 JSON 传递，语义校验在服务层。
type AutomationHandler struct {
	service *services.AutomationService
}

func NewAutomationHandler(service *services.AutomationService) *AutomationHandler {
	return &AutomationHandler{service: service}
}

// ListRules 获取规则列表，支持 ?board_id= 过滤
func (h *AutomationHandler) ListRules(c *gin.Context) {
	var boardID uint
	if v := c.Query("board_id"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid board_id", Message: err.Error()})
			return
		}
		boardID = uint(parsed)
	}

	rules, err := h.service.ListRules(c.Request.Context(), boardID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule 创建规则
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则（触发类型不可变更）
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req services.AutomationRuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if err.Error() == "rule not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if err.Error() == "rule not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// ListExecutions 获取规则的执行历史
func (h *AutomationHandler) ListExecutions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	executions, err := h.service.ListExecutions(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, executions)
}

// FireRequest 手动触发请求（调试/补偿用）
type FireRequest struct {
	TriggerType string                  `json:"trigger_type" binding:"required"`
	Context     services.TriggerContext `json:"context" binding:"required"`
}

// Fire 手动触发一次事件分发
func (h *AutomationHandler) Fire(c *gin.Context) {
	var req FireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	result, err := h.service.FireTriggers(c.Request.Context(), req.TriggerType, req.Context)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to fire trigger", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListRules)
		auto.POST("", handler.CreateRule)
		auto.PUT(":id", handler.UpdateRule)
		auto.DELETE(":id", handler.DeleteRule)
		auto.GET(":id/executions", handler.ListExecutions)
		auto.POST("/fire", handler.Fire)
	}
}
