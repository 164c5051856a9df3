package handlers

import (
	"net/http"

	"restorify/internal/services"

	"github.com/gin-gonic/gin"
)

// BoardHandler 看板/条目/列值接口
type BoardHandler struct {
	service *services.BoardService
}

func NewBoardHandler(service *services.BoardService) *BoardHandler {
	return &BoardHandler{service: service}
}

// CreateBoard 创建看板
func (h *BoardHandler) CreateBoard(c *gin.Context) {
	var req services.BoardCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	board, err := h.service.CreateBoard(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create board", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, board)
}

// GetBoard 获取看板详情（含分组/列定义）
func (h *BoardHandler) GetBoard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	board, err := h.service.GetBoard(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if err.Error() == "board not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get board", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, board)
}

// ListItems 看板条目列表
func (h *BoardHandler) ListItems(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	items, err := h.service.ListItems(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list items", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

// CreateItem 创建条目
func (h *BoardHandler) CreateItem(c *gin.Context) {
	var req services.ItemCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	item, err := h.service.CreateItem(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create item", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateItem 更新条目字段
func (h *BoardHandler) UpdateItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req services.ItemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	item, err := h.service.UpdateItemFields(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if err.Error() == "item not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update item", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

// ColumnValueRequest 设置列值请求
type ColumnValueRequest struct {
	ColumnID string      `json:"column_id" binding:"required"`
	Value    interface{} `json:"value"`
	UserID   *uint       `json:"user_id"`
}

// SetColumnValue 写入条目的列值
func (h *BoardHandler) SetColumnValue(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req ColumnValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.service.SetColumnValue(c.Request.Context(), id, req.ColumnID, req.Value, req.UserID); err != nil {
		status := http.StatusBadRequest
		if err.Error() == "item not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to set column value", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "updated"})
}

// DependencyRequest 依赖关系请求
type DependencyRequest struct {
	DependsOnID uint `json:"depends_on_id" binding:"required"`
}

// AddDependency 为条目添加前置依赖
func (h *BoardHandler) AddDependency(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: "id must be a number"})
		return
	}

	var req DependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.service.AddDependency(c.Request.Context(), id, req.DependsOnID); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to add dependency", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Message: "created"})
}

// RegisterBoardRoutes 注册路由
func RegisterBoardRoutes(r *gin.RouterGroup, handler *BoardHandler) {
	boards := r.Group("/boards")
	{
		boards.POST("", handler.CreateBoard)
		boards.GET(":id", handler.GetBoard)
		boards.GET(":id/items", handler.ListItems)
	}
	items := r.Group("/items")
	{
		items.POST("", handler.CreateItem)
		items.PUT(":id", handler.UpdateItem)
		items.PUT(":id/values", handler.SetColumnValue)
		items.POST(":id/dependencies", handler.AddDependency)
	}
}
