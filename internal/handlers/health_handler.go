package handlers

import (
	"net/http"
	"runtime"
	"time"

	"restorify/internal/config"
	"restorify/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler 健康检查与指标处理器
type HealthHandler struct {
	config *config.Config
	db     *gorm.DB
}

func NewHealthHandler(cfg *config.Config, db *gorm.DB) *HealthHandler {
	return &HealthHandler{config: cfg, db: db}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
}

var startTime = time.Now()

// Health 健康检查端点
func (h *HealthHandler) Health(c *gin.Context) {
	services := map[string]string{}
	status := "healthy"

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			services["database"] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			services["database"] = "healthy"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(startTime).String(),
	})
}

// Metrics 输出进程内计数器快照
func (h *HealthHandler) Metrics(c *gin.Context) {
	execTotal, execByStatus := metrics.ExecutionSnapshot()
	dropTotal, dropByPrefix := metrics.RateLimitSnapshot()

	c.JSON(http.StatusOK, gin.H{
		"automation_executions": gin.H{
			"total":     execTotal,
			"by_status": execByStatus,
		},
		"rate_limit_drops": gin.H{
			"total":     dropTotal,
			"by_prefix": dropByPrefix,
		},
	})
}
