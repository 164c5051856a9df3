package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotEmpty(t, cfg.Server.Host)
	assert.NotZero(t, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Database.Name)
	assert.NotEmpty(t, cfg.Log.Level)
}

func TestConfig_DatabaseSettings(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotZero(t, cfg.Database.MaxOpenConns)
	assert.NotZero(t, cfg.Database.MaxIdleConns)
	assert.NotZero(t, cfg.Database.ConnMaxLifetime)
}

func TestConfig_SecurityDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.True(t, cfg.Security.CORS.Enabled)
	assert.True(t, cfg.Security.RateLimiting.Enabled)
	assert.NotZero(t, cfg.Security.RateLimiting.RequestsPerMinute)
}

func TestConfig_AutomationDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.Automation.ProcessTimeout)
	assert.True(t, cfg.Automation.SchedulerEnabled)
	assert.NotEmpty(t, cfg.Automation.SchedulerSpec)
}

func TestConfig_NotificationDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.NotZero(t, cfg.Notifications.Timeout)
	// webhook 默认关闭（空地址）
	assert.Empty(t, cfg.Notifications.WebhookURL)
}

func TestConfig_TracingDefaults(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.False(t, cfg.Monitoring.Tracing.Enabled)
	assert.NotEmpty(t, cfg.Monitoring.Tracing.Endpoint)
	assert.Greater(t, cfg.Monitoring.Tracing.SampleRatio, 0.0)
	assert.LessOrEqual(t, cfg.Monitoring.Tracing.SampleRatio, 1.0)
}
