package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"restorify/internal/models"
)

func TestJobHandler_CreateAndList(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"number":        "J-100",
		"customer_name": "Smith Residence",
		"loss_type":     "fire",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job: %d %s", w.Code, w.Body.String())
	}
	var job models.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.LossType != "fire" {
		t.Errorf("loss_type = %s", job.LossType)
	}

	// number/customer_name 必填
	w = doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"number": "J-101"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete job = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list jobs: %d", w.Code)
	}
	var jobs []models.Job
	if err := json.Unmarshal(w.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(jobs))
	}
}

func TestJobHandler_UpdateStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"number":        "J-200",
		"customer_name": "Acme",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job: %d", w.Code)
	}
	var job models.Job
	_ = json.Unmarshal(w.Body.Bytes(), &job)

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/jobs/%d/status", job.ID), map[string]interface{}{
		"status": "drying",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status: %d %s", w.Code, w.Body.String())
	}
	var updated models.Job
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Status != "drying" {
		t.Errorf("status = %s, want drying", updated.Status)
	}

	w = doJSON(t, r, http.MethodPut, "/api/v1/jobs/9999/status", map[string]interface{}{"status": "closed"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing job = %d, want 404", w.Code)
	}
}

func TestJobHandler_ChambersAndLogs(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"number":        "J-300",
		"customer_name": "Acme",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job: %d", w.Code)
	}
	var job models.Job
	_ = json.Unmarshal(w.Body.Bytes(), &job)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/jobs/%d/chambers", job.ID), map[string]interface{}{
		"name":       "Living Room",
		"target_gpp": 55,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create chamber: %d %s", w.Code, w.Body.String())
	}
	var chamber models.DryingChamber
	_ = json.Unmarshal(w.Body.Bytes(), &chamber)

	w = doJSON(t, r, http.MethodPost, "/api/v1/jobs/9999/chambers", map[string]interface{}{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("chamber for missing job = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/chambers/%d/logs", chamber.ID), map[string]interface{}{
		"temp_f": 75,
		"rh":     50,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add log: %d %s", w.Code, w.Body.String())
	}
	var log models.DryingLog
	_ = json.Unmarshal(w.Body.Bytes(), &log)
	if log.GPP <= 0 {
		t.Errorf("GPP = %v, want computed value", log.GPP)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/chambers/%d/logs", chamber.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list logs: %d", w.Code)
	}
	var logs []models.DryingLog
	if err := json.Unmarshal(w.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("logs = %d, want 1", len(logs))
	}
}

func TestJobHandler_ListNotifications(t *testing.T) {
	r, db := newTestRouter(t)

	alice := uint(1)
	db.Create(&models.Notification{UserID: &alice, Title: "a", Channel: "in_app"})
	db.Create(&models.Notification{Title: "b", Channel: "in_app"})

	w := doJSON(t, r, http.MethodGet, "/api/v1/notifications?user_id=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list notifications: %d", w.Code)
	}
	var got []models.Notification
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("notifications = %d, want 1", len(got))
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/notifications?user_id=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad user_id = %d, want 400", w.Code)
	}
}
