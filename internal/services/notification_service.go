package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"restorify/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"
)

// NotificationRequest is what the automation engine hands over; delivery
// mechanics stay on this side of the boundary.
type NotificationRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	UserID  *uint  `json:"user_id,omitempty"`
	ItemID  *uint  `json:"item_id,omitempty"`
	Channel string `json:"channel,omitempty"` // in_app, webhook
}

// NotificationService 通知服务：落库 + 可选 webhook 外发。
// webhook 投递为尽力而为，失败只记日志，不影响触发方
type NotificationService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	webhookURL string
	client     *http.Client
	breaker    *CircuitBreaker
}

func NewNotificationService(db *gorm.DB, logger *logrus.Logger, webhookURL string, timeout time.Duration) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationService{
		db:         db,
		logger:     logger,
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: NewCircuitBreaker(),
	}
}

// Notify persists the notification and, when a webhook endpoint is
// configured, posts it out behind the circuit breaker.
func (s *NotificationService) Notify(ctx context.Context, req *NotificationRequest) error {
	if req == nil {
		return fmt.Errorf("request required")
	}
	channel := req.Channel
	if channel == "" {
		channel = "in_app"
	}
	notification := &models.Notification{
		UserID:    req.UserID,
		ItemID:    req.ItemID,
		Title:     req.Title,
		Body:      req.Body,
		Channel:   channel,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if s.webhookURL == "" {
		return nil
	}
	if !s.breaker.Allow() {
		s.logger.Warnf("notification: webhook circuit open, skipping delivery of %d", notification.ID)
		return nil
	}
	if err := s.postWebhook(ctx, req); err != nil {
		s.breaker.OnFailure()
		s.logger.Warnf("notification: webhook delivery failed: %v", err)
		return nil
	}
	s.breaker.OnSuccess()

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(notification).Update("sent_at", now).Error; err != nil {
		s.logger.Warnf("notification: stamp sent_at: %v", err)
	}
	return nil
}

func (s *NotificationService) postWebhook(ctx context.Context, req *NotificationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ListNotifications 查询通知记录
func (s *NotificationService) ListNotifications(ctx context.Context, userID *uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	var out []models.Notification
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
