package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"restorify/internal/models"
)

func TestNotify_PersistsAndPostsWebhook(t *testing.T) {
	db := newAutomationTestDB(t)
	var received int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewNotificationService(db, quietLogger(), server.URL, 2*time.Second)
	userID := uint(3)
	if err := svc.Notify(context.Background(), &NotificationRequest{
		Title:  "chamber dry",
		Body:   "GPP below target",
		UserID: &userID,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("webhook received %d requests, want 1", received)
	}
	var n models.Notification
	if err := db.First(&n).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if n.Channel != "in_app" {
		t.Errorf("channel = %s, want default in_app", n.Channel)
	}
	if n.SentAt == nil {
		t.Error("sent_at should be stamped after delivery")
	}
}

func TestNotify_WebhookFailureIsSwallowed(t *testing.T) {
	db := newAutomationTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewNotificationService(db, quietLogger(), server.URL, 2*time.Second)
	if err := svc.Notify(context.Background(), &NotificationRequest{Title: "t"}); err != nil {
		t.Fatalf("webhook failure must not surface: %v", err)
	}

	var n models.Notification
	if err := db.First(&n).Error; err != nil {
		t.Fatalf("notification should persist regardless: %v", err)
	}
	if n.SentAt != nil {
		t.Error("sent_at must stay empty on failed delivery")
	}
}

func TestNotify_NoWebhookConfigured(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewNotificationService(db, quietLogger(), "", 0)

	if err := svc.Notify(context.Background(), &NotificationRequest{Title: "t", Channel: "webhook"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	var n models.Notification
	if err := db.First(&n).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if n.Channel != "webhook" {
		t.Errorf("channel = %s", n.Channel)
	}
	if n.SentAt != nil {
		t.Error("sent_at must stay empty without an endpoint")
	}

	if err := svc.Notify(context.Background(), nil); err == nil {
		t.Error("nil request should error")
	}
}

func TestNotify_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	db := newAutomationTestDB(t)
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewNotificationService(db, quietLogger(), server.URL, 2*time.Second)
	for i := 0; i < 8; i++ {
		if err := svc.Notify(context.Background(), &NotificationRequest{Title: "t"}); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}

	// 默认连续 5 次失败后熔断：之后的投递直接跳过
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Errorf("webhook hits = %d, want 5", got)
	}
	if svc.breaker.State() != StateOpenCB {
		t.Errorf("breaker state = %s, want open", svc.breaker.State())
	}

	// 落库不受熔断影响
	var count int64
	db.Model(&models.Notification{}).Count(&count)
	if count != 8 {
		t.Errorf("notifications = %d, want 8", count)
	}
}

func TestListNotifications(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := NewNotificationService(db, quietLogger(), "", 0)
	ctx := context.Background()

	alice := uint(1)
	bob := uint(2)
	for i := 0; i < 3; i++ {
		db.Create(&models.Notification{UserID: &alice, Title: "a", Channel: "in_app"})
	}
	db.Create(&models.Notification{UserID: &bob, Title: "b", Channel: "in_app"})

	got, err := svc.ListNotifications(ctx, &alice, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("alice notifications = %d, want 3", len(got))
	}

	got, err = svc.ListNotifications(ctx, nil, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limited = %d, want 2", len(got))
	}
}
