package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"restorify/internal/models"
)

func TestBoardHandler_CreateAndGet(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/boards", map[string]interface{}{
		"name":   "Water Jobs",
		"kind":   "jobs",
		"groups": []string{"New", "Drying"},
		"columns": []map[string]interface{}{
			{"key": "status", "title": "Status", "type": "status"},
			{"key": "tags", "title": "Tags", "type": "tags"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create board: %d %s", w.Code, w.Body.String())
	}
	var board models.Board
	if err := json.Unmarshal(w.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/boards/%d", board.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get board: %d", w.Code)
	}
	var got models.Board
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Groups) != 2 || len(got.Columns) != 2 {
		t.Errorf("groups/columns = %d/%d, want 2/2", len(got.Groups), len(got.Columns))
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/boards/9999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing board = %d, want 404", w.Code)
	}

	// name 必填
	w = doJSON(t, r, http.MethodPost, "/api/v1/boards", map[string]interface{}{"kind": "jobs"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("nameless board = %d, want 400", w.Code)
	}
}

func TestBoardHandler_ItemLifecycle(t *testing.T) {
	r, db := newTestRouter(t)
	board, _ := seedHandlerBoard(t, db)

	w := doJSON(t, r, http.MethodPost, "/api/v1/items", map[string]interface{}{
		"board_id": board.ID,
		"name":     "456 Oak Ave mold",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create item: %d %s", w.Code, w.Body.String())
	}
	var item models.BoardItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/items/%d", item.ID), map[string]interface{}{
		"name":         "456 Oak Ave mold remediation",
		"is_completed": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update item: %d %s", w.Code, w.Body.String())
	}
	var updated models.BoardItem
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if !updated.IsCompleted {
		t.Error("item should be completed")
	}

	w = doJSON(t, r, http.MethodPut, "/api/v1/items/9999", map[string]interface{}{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing item = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/boards/%d/items", board.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list items: %d", w.Code)
	}
	var items []models.BoardItem
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
}

func TestBoardHandler_SetColumnValue(t *testing.T) {
	r, db := newTestRouter(t)
	_, item := seedHandlerBoard(t, db)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/items/%d/values", item.ID), map[string]interface{}{
		"column_id": "status",
		"value":     "drying",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("set value: %d %s", w.Code, w.Body.String())
	}

	var cv models.ColumnValue
	if err := db.Where("item_id = ? AND column_id = ?", item.ID, "status").First(&cv).Error; err != nil {
		t.Fatalf("load column value: %v", err)
	}
	if cv.TextValue != "drying" {
		t.Errorf("text_value = %q, want drying", cv.TextValue)
	}

	// column_id 必填
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/items/%d/values", item.ID), map[string]interface{}{
		"value": "x",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing column_id = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, "/api/v1/items/9999/values", map[string]interface{}{
		"column_id": "status",
		"value":     "x",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing item = %d, want 404", w.Code)
	}
}

func TestBoardHandler_AddDependency(t *testing.T) {
	r, db := newTestRouter(t)
	board, item := seedHandlerBoard(t, db)

	other := &models.BoardItem{BoardID: board.ID, Name: "upstream"}
	db.Create(other)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/items/%d/dependencies", item.ID), map[string]interface{}{
		"depends_on_id": other.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add dependency: %d %s", w.Code, w.Body.String())
	}

	// 自依赖 400
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/items/%d/dependencies", item.ID), map[string]interface{}{
		"depends_on_id": item.ID,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self dependency = %d, want 400", w.Code)
	}
}
