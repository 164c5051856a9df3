package services

import (
	"context"
	"fmt"
	"testing"

	"restorify/internal/models"
	"github.com/sirupsen/logrus"
)

// fakeMutator records mutation calls so executor behavior can be asserted
// without a database.
type fakeMutator struct {
	calls     []string
	columns   map[string]interface{}
	failOn    string // action call name that should error
	snapshots map[uint]*ItemSnapshot
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{columns: map[string]interface{}{}, snapshots: map[uint]*ItemSnapshot{}}
}

func (f *fakeMutator) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (f *fakeMutator) GetItemSnapshot(ctx context.Context, itemID uint) (*ItemSnapshot, error) {
	if snap, ok := f.snapshots[itemID]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("item %d not found", itemID)
}

func (f *fakeMutator) GetColumnValue(ctx context.Context, itemID uint, columnID string) (interface{}, error) {
	return f.columns[columnID], nil
}

func (f *fakeMutator) UpsertColumnValue(ctx context.Context, itemID uint, columnID string, value interface{}) error {
	if err := f.record("upsert"); err != nil {
		return err
	}
	f.columns[columnID] = value
	return nil
}

func (f *fakeMutator) UpdateItem(ctx context.Context, itemID uint, patch map[string]interface{}) error {
	return f.record("update_item")
}

func (f *fakeMutator) InsertItem(ctx context.Context, boardID uint, groupID *uint, name string, createdBy *uint) (*models.BoardItem, error) {
	if err := f.record("insert_item"); err != nil {
		return nil, err
	}
	return &models.BoardItem{ID: 99, BoardID: boardID, Name: name}, nil
}

func (f *fakeMutator) InsertSubitem(ctx context.Context, itemID uint, name string) (*models.Subitem, error) {
	if err := f.record("insert_subitem"); err != nil {
		return nil, err
	}
	return &models.Subitem{ID: 99, ItemID: itemID, Name: name}, nil
}

func (f *fakeMutator) AppendToColumnSet(ctx context.Context, itemID uint, columnID string, value interface{}) error {
	if err := f.record("append_set"); err != nil {
		return err
	}
	set, _ := f.columns[columnID].([]interface{})
	f.columns[columnID] = append(set, value)
	return nil
}

type fakeNotifier struct {
	requests []*NotificationRequest
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, req *NotificationRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func itemScope(itemID uint) actionScope {
	return actionScope{BoardID: 1, ItemID: &itemID}
}

func TestActionExecutor_RunsInOrder(t *testing.T) {
	mutator := newFakeMutator()
	exec := NewActionExecutor(mutator, nil, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "update_column", Config: map[string]interface{}{"column_id": "status", "value": "done"}},
		{Type: "add_tag", Config: map[string]interface{}{"tag": "urgent", "tags_column_id": "tags"}},
		{Type: "create_subitem", Config: map[string]interface{}{"name": "inspect"}},
	}, itemScope(1))

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	want := []string{"upsert", "append_set", "insert_subitem"}
	if len(mutator.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", mutator.calls, want)
	}
	for i, name := range want {
		if mutator.calls[i] != name {
			t.Errorf("call %d = %s, want %s", i, mutator.calls[i], name)
		}
	}
	for _, o := range outcomes {
		if o.Status != "success" {
			t.Errorf("outcome %d status = %s, want success", o.Index, o.Status)
		}
	}
}

func TestActionExecutor_FailureDoesNotAbortRest(t *testing.T) {
	mutator := newFakeMutator()
	mutator.failOn = "upsert"
	exec := NewActionExecutor(mutator, nil, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "update_column", Config: map[string]interface{}{"column_id": "status", "value": "done"}},
		{Type: "add_tag", Config: map[string]interface{}{"tag": "urgent", "tags_column_id": "tags"}},
	}, itemScope(1))

	if outcomes[0].Status != "failed" {
		t.Errorf("first outcome = %s, want failed", outcomes[0].Status)
	}
	if outcomes[0].Error == "" {
		t.Error("failed outcome should carry the error")
	}
	if outcomes[1].Status != "success" {
		t.Errorf("second outcome = %s, want success", outcomes[1].Status)
	}
}

func TestActionExecutor_UnknownTypeSkipped(t *testing.T) {
	exec := NewActionExecutor(newFakeMutator(), nil, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "launch_rocket", Config: nil},
	}, itemScope(1))

	if outcomes[0].Status != "skipped" {
		t.Errorf("outcome = %s, want skipped", outcomes[0].Status)
	}
}

func TestActionExecutor_ChangeStatusDelegates(t *testing.T) {
	mutator := newFakeMutator()
	exec := NewActionExecutor(mutator, nil, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "change_status", Config: map[string]interface{}{"status": "done", "status_column_id": "status"}},
	}, itemScope(1))

	if outcomes[0].Status != "success" {
		t.Fatalf("outcome = %s, want success", outcomes[0].Status)
	}
	if got := mutator.columns["status"]; got != "done" {
		t.Errorf("status column = %v, want done", got)
	}
}

func TestActionExecutor_RequiresItemForItemScoped(t *testing.T) {
	exec := NewActionExecutor(newFakeMutator(), nil, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "update_column", Config: map[string]interface{}{"column_id": "status", "value": "x"}},
	}, actionScope{BoardID: 1})

	if outcomes[0].Status != "failed" {
		t.Errorf("outcome = %s, want failed without target item", outcomes[0].Status)
	}
}

func TestActionExecutor_CreateItemBoardOverride(t *testing.T) {
	mutator := newFakeMutator()
	exec := NewActionExecutor(mutator, nil, quietLogger())

	other := uint(7)
	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "create_item", Config: map[string]interface{}{"name": "followup", "board_id": other}},
	}, itemScope(1))

	if outcomes[0].Status != "success" {
		t.Fatalf("outcome = %s, want success", outcomes[0].Status)
	}
}

func TestActionExecutor_SendNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	exec := NewActionExecutor(newFakeMutator(), notifier, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "send_notification", Config: map[string]interface{}{"message": "chamber dry"}},
	}, itemScope(5))

	if outcomes[0].Status != "success" {
		t.Fatalf("outcome = %s, want success", outcomes[0].Status)
	}
	if len(notifier.requests) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.requests))
	}
	req := notifier.requests[0]
	if req.Title == "" {
		t.Error("expected default title")
	}
	if req.ItemID == nil || *req.ItemID != 5 {
		t.Error("notification should carry the scope item")
	}
}

func TestActionExecutor_NoNotifierDropsQuietly(t *testing.T) {
	exec := NewActionExecutor(newFakeMutator(), nil, quietLogger())

	outcomes := exec.Execute(context.Background(), []Action{
		{Type: "send_notification", Config: map[string]interface{}{"message": "hi"}},
	}, itemScope(1))

	if outcomes[0].Status != "success" {
		t.Errorf("outcome = %s, want success when notifier missing", outcomes[0].Status)
	}
}
