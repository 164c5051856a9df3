package services

import (
	"context"
	"encoding/json"
	"fmt"

	"restorify/internal/models"

	"github.com/sirupsen/logrus"
)

// Action is one declarative side-effecting operation inside a rule. Config is
// validated at execution time, not at rule-authoring time.
type Action struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// ActionOutcome records how a single action fared. Outcomes are audit data:
// they never influence the execution's top-level status.
type ActionOutcome struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Status string `json:"status"` // success, failed, skipped
	Error  string `json:"error,omitempty"`
}

// BoardMutator is the item/board mutation surface the engine writes through.
// Implementations must serialize mutation per item: AppendToColumnSet is
// read-then-write and would race under concurrent writers otherwise.
type BoardMutator interface {
	GetItemSnapshot(ctx context.Context, itemID uint) (*ItemSnapshot, error)
	GetColumnValue(ctx context.Context, itemID uint, columnID string) (interface{}, error)
	UpsertColumnValue(ctx context.Context, itemID uint, columnID string, value interface{}) error
	UpdateItem(ctx context.Context, itemID uint, patch map[string]interface{}) error
	InsertItem(ctx context.Context, boardID uint, groupID *uint, name string, createdBy *uint) (*models.BoardItem, error)
	InsertSubitem(ctx context.Context, itemID uint, name string) (*models.Subitem, error)
	AppendToColumnSet(ctx context.Context, itemID uint, columnID string, value interface{}) error
}

// Notifier delivers send_notification actions. Delivery mechanics live outside
// the engine.
type Notifier interface {
	Notify(ctx context.Context, req *NotificationRequest) error
}

// actionScope carries the target of an action batch.
type actionScope struct {
	BoardID uint
	ItemID  *uint
	UserID  *uint
}

type actionHandler func(ctx context.Context, config map[string]interface{}, scope actionScope) error

// ActionExecutor dispatches rule actions through a kind-keyed handler
// registry. Each handler decodes the loose config map into its own typed
// config before touching anything.
type ActionExecutor struct {
	mutator  BoardMutator
	notifier Notifier
	logger   *logrus.Logger
	handlers map[string]actionHandler
}

func NewActionExecutor(mutator BoardMutator, notifier Notifier, logger *logrus.Logger) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	e := &ActionExecutor{mutator: mutator, notifier: notifier, logger: logger}
	e.handlers = map[string]actionHandler{
		"update_column":     e.executeUpdateColumn,
		"move_to_group":     e.executeMoveToGroup,
		"create_item":       e.executeCreateItem,
		"change_status":     e.executeChangeStatus,
		"assign_person":     e.executeAssignPerson,
		"add_tag":           e.executeAddTag,
		"create_subitem":    e.executeCreateSubitem,
		"send_notification": e.executeSendNotification,
	}
	return e
}

// Execute runs the actions strictly in order. A failing action is logged and
// recorded but never aborts the remaining actions, and the executor never
// raises to its caller.
func (e *ActionExecutor) Execute(ctx context.Context, actions []Action, scope actionScope) []ActionOutcome {
	outcomes := make([]ActionOutcome, 0, len(actions))
	for i, act := range actions {
		outcome := ActionOutcome{Index: i, Type: act.Type, Status: "success"}
		handler, ok := e.handlers[act.Type]
		if !ok {
			e.logger.Warnf("automation: unsupported action type %q, skipping", act.Type)
			outcome.Status = "skipped"
			outcome.Error = fmt.Sprintf("unsupported action type: %s", act.Type)
			outcomes = append(outcomes, outcome)
			continue
		}
		if err := handler(ctx, act.Config, scope); err != nil {
			e.logger.Warnf("automation: action %d (%s) failed: %v", i, act.Type, err)
			outcome.Status = "failed"
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// decodeActionConfig round-trips the loose config map through JSON into the
// handler's typed config struct.
func decodeActionConfig(config map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("invalid action config: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid action config: %w", err)
	}
	return nil
}

func requireItem(scope actionScope) (uint, error) {
	if scope.ItemID == nil {
		return 0, fmt.Errorf("action requires a target item")
	}
	return *scope.ItemID, nil
}

type updateColumnConfig struct {
	ColumnID string      `json:"column_id"`
	Value    interface{} `json:"value"`
}

func (e *ActionExecutor) executeUpdateColumn(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	itemID, err := requireItem(scope)
	if err != nil {
		return err
	}
	var cfg updateColumnConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.ColumnID == "" {
		return fmt.Errorf("column_id is required for update_column")
	}
	return e.mutator.UpsertColumnValue(ctx, itemID, cfg.ColumnID, cfg.Value)
}

type moveToGroupConfig struct {
	GroupID uint `json:"group_id"`
}

func (e *ActionExecutor) executeMoveToGroup(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	itemID, err := requireItem(scope)
	if err != nil {
		return err
	}
	var cfg moveToGroupConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.GroupID == 0 {
		return fmt.Errorf("group_id is required for move_to_group")
	}
	return e.mutator.UpdateItem(ctx, itemID, map[string]interface{}{"group_id": cfg.GroupID})
}

type createItemConfig struct {
	Name    string `json:"name"`
	BoardID *uint  `json:"board_id"`
	GroupID *uint  `json:"group_id"`
}

func (e *ActionExecutor) executeCreateItem(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	var cfg createItemConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("name is required for create_item")
	}
	boardID := scope.BoardID
	if cfg.BoardID != nil {
		boardID = *cfg.BoardID
	}
	_, err := e.mutator.InsertItem(ctx, boardID, cfg.GroupID, cfg.Name, scope.UserID)
	return err
}

type changeStatusConfig struct {
	Status         string `json:"status"`
	StatusColumnID string `json:"status_column_id"`
}

// executeChangeStatus is sugar over update_column against the status column.
func (e *ActionExecutor) executeChangeStatus(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	var cfg changeStatusConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Status == "" || cfg.StatusColumnID == "" {
		return fmt.Errorf("status and status_column_id are required for change_status")
	}
	return e.executeUpdateColumn(ctx, map[string]interface{}{
		"column_id": cfg.StatusColumnID,
		"value":     cfg.Status,
	}, scope)
}

type assignPersonConfig struct {
	PersonID       interface{} `json:"person_id"`
	PeopleColumnID string      `json:"people_column_id"`
}

func (e *ActionExecutor) executeAssignPerson(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	itemID, err := requireItem(scope)
	if err != nil {
		return err
	}
	var cfg assignPersonConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.PersonID == nil || cfg.PeopleColumnID == "" {
		return fmt.Errorf("person_id and people_column_id are required for assign_person")
	}
	return e.mutator.AppendToColumnSet(ctx, itemID, cfg.PeopleColumnID, cfg.PersonID)
}

type addTagConfig struct {
	Tag          string `json:"tag"`
	TagsColumnID string `json:"tags_column_id"`
}

func (e *ActionExecutor) executeAddTag(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	itemID, err := requireItem(scope)
	if err != nil {
		return err
	}
	var cfg addTagConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Tag == "" || cfg.TagsColumnID == "" {
		return fmt.Errorf("tag and tags_column_id are required for add_tag")
	}
	return e.mutator.AppendToColumnSet(ctx, itemID, cfg.TagsColumnID, cfg.Tag)
}

type createSubitemConfig struct {
	Name string `json:"name"`
}

func (e *ActionExecutor) executeCreateSubitem(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	itemID, err := requireItem(scope)
	if err != nil {
		return err
	}
	var cfg createSubitemConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Name == "" {
		return fmt.Errorf("name is required for create_subitem")
	}
	_, err = e.mutator.InsertSubitem(ctx, itemID, cfg.Name)
	return err
}

type sendNotificationConfig struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	UserID  *uint  `json:"user_id"`
	Channel string `json:"channel"`
}

func (e *ActionExecutor) executeSendNotification(ctx context.Context, config map[string]interface{}, scope actionScope) error {
	if e.notifier == nil {
		e.logger.Infof("automation: no notifier configured, dropping send_notification")
		return nil
	}
	var cfg sendNotificationConfig
	if err := decodeActionConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.Title == "" {
		cfg.Title = "Automation notification"
	}
	return e.notifier.Notify(ctx, &NotificationRequest{
		Title:   cfg.Title,
		Body:    cfg.Message,
		UserID:  cfg.UserID,
		ItemID:  scope.ItemID,
		Channel: cfg.Channel,
	})
}
