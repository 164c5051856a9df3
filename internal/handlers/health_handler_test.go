package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"restorify/internal/config"
	"restorify/internal/metrics"

	"github.com/gin-gonic/gin"
)

func TestHealthHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, db := newTestRouter(t)

	r := gin.New()
	h := NewHealthHandler(config.GetDefaultConfig(), db)
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %s", resp.Status)
	}
	if resp.Services["database"] != "healthy" {
		t.Errorf("database = %s", resp.Services["database"])
	}
}

func TestHealthHandler_Metrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, db := newTestRouter(t)

	metrics.IncExecution("success")

	r := gin.New()
	h := NewHealthHandler(config.GetDefaultConfig(), db)
	r.GET("/metrics", h.Metrics)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}

	var resp map[string]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp["automation_executions"]; !ok {
		t.Error("missing automation_executions section")
	}
	if _, ok := resp["rate_limit_drops"]; !ok {
		t.Error("missing rate_limit_drops section")
	}
}
