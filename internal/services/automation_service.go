package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restorify/internal/metrics"
	"restorify/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TriggerContext is the payload describing what happened: which board, which
// item, which column changed and how, and who did it.
type TriggerContext struct {
	EventID  string      `json:"event_id,omitempty"`
	BoardID  uint        `json:"board_id"`
	ItemID   *uint       `json:"item_id,omitempty"`
	ColumnID string      `json:"column_id,omitempty"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
	UserID   *uint       `json:"user_id,omitempty"`
}

// FireResult aggregates one trigger event's processing. The operation that
// raised the trigger gets counts, never a hard failure from automation.
type FireResult struct {
	ExecutedCount int      `json:"executed_count"`
	TotalMatched  int      `json:"total_matched"`
	Errors        []string `json:"errors"`
}

// triggerConfig narrows which events a rule fires on. Shape depends on the
// trigger type; unset fields match everything.
type triggerConfig struct {
	ColumnID     string `json:"column_id,omitempty"`
	TargetStatus string `json:"target_status,omitempty"`
}

// AutomationService matches board events against automation rules and drives
// each resulting execution to a terminal state. Rules are authored elsewhere
// and read-only here.
type AutomationService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	executor *ActionExecutor
	mutator  BoardMutator
	timeout  time.Duration
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger, mutator BoardMutator, notifier Notifier) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{
		db:       db,
		logger:   logger,
		executor: NewActionExecutor(mutator, notifier, logger),
		mutator:  mutator,
		timeout:  10 * time.Second,
	}
}

// SetProcessTimeout bounds total per-trigger processing time. A deadline hit
// is a structural failure; executions never stay pending.
func (s *AutomationService) SetProcessTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// FireTriggers is the engine's sole entry point. It matches the event against
// the board's active rules, creates or reuses a pending execution per match,
// and processes the executions sequentially in rule creation order. Ordering
// is load-bearing: a later rule's conditions observe an earlier rule's
// mutations. One execution's failure never blocks the rest.
func (s *AutomationService) FireTriggers(ctx context.Context, triggerType string, tctx TriggerContext) (*FireResult, error) {
	if tctx.BoardID == 0 {
		return nil, fmt.Errorf("board_id is required")
	}
	if !isSupportedTrigger(triggerType) {
		return nil, fmt.Errorf("unsupported trigger type: %s", triggerType)
	}
	if tctx.EventID == "" {
		tctx.EventID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Rule store unavailability fails the whole dispatch atomically.
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("board_id = ? AND trigger_type = ? AND is_active = ?", tctx.BoardID, triggerType, true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("load automation rules: %w", err)
	}

	result := &FireResult{}
	for i := range rules {
		rule := &rules[i]
		if !s.matchesTriggerConfig(rule, triggerType, tctx) {
			continue
		}
		result.TotalMatched++

		exec, err := s.createOrReusePending(ctx, rule.ID, tctx)
		if err != nil {
			s.logger.Warnf("automation: rule %d (%s): create execution: %v", rule.ID, rule.Name, err)
			result.Errors = append(result.Errors, fmt.Sprintf("rule %d: %v", rule.ID, err))
			continue
		}

		status := s.processExecution(ctx, rule, exec, tctx)
		metrics.IncExecution(status)
		switch status {
		case models.ExecutionFailed:
			result.Errors = append(result.Errors, fmt.Sprintf("rule %d: execution %d failed", rule.ID, exec.ID))
		case models.ExecutionSuccess:
			result.ExecutedCount++
		}
	}
	return result, nil
}

// matchesTriggerConfig applies the per-trigger-type narrowing filters. A rule
// without a filter matches every event of its trigger type.
func (s *AutomationService) matchesTriggerConfig(rule *models.AutomationRule, triggerType string, tctx TriggerContext) bool {
	var cfg triggerConfig
	if len(rule.TriggerConfig) > 0 {
		if err := json.Unmarshal(rule.TriggerConfig, &cfg); err != nil {
			s.logger.Warnf("automation: rule %d has invalid trigger_config: %v", rule.ID, err)
			return false
		}
	}

	switch triggerType {
	case models.TriggerColumnChanged, models.TriggerDateReached:
		if cfg.ColumnID != "" && cfg.ColumnID != tctx.ColumnID {
			return false
		}
	case models.TriggerStatusChanged:
		if cfg.ColumnID != "" && cfg.ColumnID != tctx.ColumnID {
			return false
		}
		if cfg.TargetStatus != "" && !valuesEqual(tctx.NewValue, cfg.TargetStatus) {
			return false
		}
	}
	return true
}

// createOrReusePending reuses an existing pending execution for the same
// (rule, item) pair. Trigger delivery is at-least-once; without this guard a
// redelivered event would double-fire the rule.
func (s *AutomationService) createOrReusePending(ctx context.Context, ruleID uint, tctx TriggerContext) (*models.AutomationExecution, error) {
	query := s.db.WithContext(ctx).Where("rule_id = ? AND status = ?", ruleID, models.ExecutionPending)
	if tctx.ItemID != nil {
		query = query.Where("item_id = ?", *tctx.ItemID)
	} else {
		query = query.Where("item_id IS NULL")
	}

	var existing models.AutomationExecution
	err := query.First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	contextJSON, err := json.Marshal(tctx)
	if err != nil {
		return nil, fmt.Errorf("marshal trigger context: %w", err)
	}
	exec := &models.AutomationExecution{
		RuleID:         ruleID,
		ItemID:         tctx.ItemID,
		TriggerContext: datatypes.JSON(contextJSON),
		Status:         models.ExecutionPending,
		CreatedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(exec).Error; err != nil {
		return nil, err
	}
	return exec, nil
}

// processExecution drives one execution to its terminal state and returns it.
// Terminal policy: conditions false -> skipped; a structural error (bad rule
// payload, store unreachable, deadline) -> failed; otherwise success, even
// when individual actions failed — those are swallowed by the executor and
// recorded in the action log.
func (s *AutomationService) processExecution(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution, tctx TriggerContext) string {
	if err := ctx.Err(); err != nil {
		return s.finalize(exec.ID, models.ExecutionFailed, "automation processing timed out", nil)
	}

	// No target item: item-scoped conditions and actions cannot run. Mark the
	// execution success for bookkeeping without touching item state.
	if tctx.ItemID == nil {
		return s.finalize(exec.ID, models.ExecutionSuccess, "", nil)
	}

	snapshot, err := s.mutator.GetItemSnapshot(ctx, *tctx.ItemID)
	if err != nil {
		return s.finalize(exec.ID, models.ExecutionFailed, fmt.Sprintf("load item snapshot: %v", err), nil)
	}

	var conds []Condition
	if len(rule.Conditions) > 0 {
		if err := json.Unmarshal(rule.Conditions, &conds); err != nil {
			return s.finalize(exec.ID, models.ExecutionFailed, fmt.Sprintf("invalid conditions: %v", err), nil)
		}
	}
	matched, err := evaluateConditions(conds, snapshot, tctx)
	if err != nil {
		return s.finalize(exec.ID, models.ExecutionFailed, err.Error(), nil)
	}
	if !matched {
		return s.finalize(exec.ID, models.ExecutionSkipped, "", nil)
	}

	var actions []Action
	if len(rule.Actions) > 0 {
		if err := json.Unmarshal(rule.Actions, &actions); err != nil {
			return s.finalize(exec.ID, models.ExecutionFailed, fmt.Sprintf("invalid actions: %v", err), nil)
		}
	}
	if err := ctx.Err(); err != nil {
		return s.finalize(exec.ID, models.ExecutionFailed, "automation processing timed out", nil)
	}

	outcomes := s.executor.Execute(ctx, actions, actionScope{
		BoardID: rule.BoardID,
		ItemID:  tctx.ItemID,
		UserID:  tctx.UserID,
	})
	return s.finalize(exec.ID, models.ExecutionSuccess, "", outcomes)
}

// finalize performs the single pending -> terminal transition. The conditional
// UPDATE makes terminal records immutable, and the write deliberately skips
// the request context: a cancelled trigger must still land its terminal state
// rather than leave the execution pending forever.
func (s *AutomationService) finalize(execID uint, status, errMsg string, outcomes []ActionOutcome) string {
	now := time.Now()
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"executed_at":   now,
	}
	if outcomes != nil {
		if raw, err := json.Marshal(outcomes); err == nil {
			updates["action_log"] = datatypes.JSON(raw)
		}
	}

	res := s.db.Model(&models.AutomationExecution{}).
		Where("id = ? AND status = ?", execID, models.ExecutionPending).
		Updates(updates)
	if res.Error != nil {
		s.logger.Warnf("automation: finalize execution %d: %v", execID, res.Error)
		return models.ExecutionFailed
	}
	if res.RowsAffected == 0 {
		s.logger.Warnf("automation: execution %d already terminal, refusing transition to %s", execID, status)
	}
	return status
}

// ---- rule administration ----

// AutomationRuleRequest 创建规则的请求。trigger_type 创建后不可变更
type AutomationRuleRequest struct {
	BoardID       uint                   `json:"board_id" binding:"required"`
	Name          string                 `json:"name" binding:"required"`
	TriggerType   string                 `json:"trigger_type" binding:"required"`
	TriggerConfig map[string]interface{} `json:"trigger_config"`
	Conditions    []Condition            `json:"conditions"`
	Actions       []Action               `json:"actions"`
	IsActive      *bool                  `json:"is_active"`
}

// AutomationRuleUpdateRequest 更新规则。没有 trigger_type 字段：触发类型固定
type AutomationRuleUpdateRequest struct {
	Name          *string                `json:"name"`
	TriggerConfig map[string]interface{} `json:"trigger_config"`
	Conditions    []Condition            `json:"conditions"`
	Actions       []Action               `json:"actions"`
	IsActive      *bool                  `json:"is_active"`
}

// ListRules 返回看板的规则（boardID 为 0 时返回全部）
func (s *AutomationService) ListRules(ctx context.Context, boardID uint) ([]models.AutomationRule, error) {
	query := s.db.WithContext(ctx).Order("id DESC")
	if boardID != 0 {
		query = query.Where("board_id = ?", boardID)
	}
	var rules []models.AutomationRule
	if err := query.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateRule 新建规则
func (s *AutomationService) CreateRule(ctx context.Context, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	if !isSupportedTrigger(req.TriggerType) {
		return nil, fmt.Errorf("unsupported trigger type: %s", req.TriggerType)
	}

	configJSON, err := json.Marshal(req.TriggerConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger_config: %w", err)
	}
	condJSON, err := json.Marshal(req.Conditions)
	if err != nil {
		return nil, fmt.Errorf("invalid conditions: %w", err)
	}
	actJSON, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule := &models.AutomationRule{
		BoardID:       req.BoardID,
		Name:          req.Name,
		IsActive:      active,
		TriggerType:   req.TriggerType,
		TriggerConfig: datatypes.JSON(configJSON),
		Conditions:    datatypes.JSON(condJSON),
		Actions:       datatypes.JSON(actJSON),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule 更新规则（名称/开关/条件/动作）
func (s *AutomationService) UpdateRule(ctx context.Context, id uint, req *AutomationRuleUpdateRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule not found")
		}
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.TriggerConfig != nil {
		raw, err := json.Marshal(req.TriggerConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger_config: %w", err)
		}
		rule.TriggerConfig = datatypes.JSON(raw)
	}
	if req.Conditions != nil {
		raw, err := json.Marshal(req.Conditions)
		if err != nil {
			return nil, fmt.Errorf("invalid conditions: %w", err)
		}
		rule.Conditions = datatypes.JSON(raw)
	}
	if req.Actions != nil {
		raw, err := json.Marshal(req.Actions)
		if err != nil {
			return nil, fmt.Errorf("invalid actions: %w", err)
		}
		rule.Actions = datatypes.JSON(raw)
	}
	rule.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteRule 删除规则
func (s *AutomationService) DeleteRule(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.AutomationRule{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule not found")
	}
	return nil
}

// ListExecutions 执行记录审计查询
func (s *AutomationService) ListExecutions(ctx context.Context, ruleID uint, limit int) ([]models.AutomationExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if ruleID != 0 {
		query = query.Where("rule_id = ?", ruleID)
	}
	var execs []models.AutomationExecution
	if err := query.Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}

func isSupportedTrigger(triggerType string) bool {
	switch triggerType {
	case models.TriggerItemCreated, models.TriggerItemUpdated, models.TriggerColumnChanged,
		models.TriggerDateReached, models.TriggerStatusChanged, models.TriggerDependencyCompleted:
		return true
	default:
		return false
	}
}
