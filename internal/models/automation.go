package models

import (
	"time"

	"gorm.io/datatypes"
)

// Trigger types understood by the automation engine.
const (
	TriggerItemCreated         = "item_created"
	TriggerItemUpdated         = "item_updated"
	TriggerColumnChanged       = "column_changed"
	TriggerDateReached         = "date_reached"
	TriggerStatusChanged       = "status_changed"
	TriggerDependencyCompleted = "dependency_completed"
)

// Execution statuses. Pending is the only non-terminal state.
const (
	ExecutionPending = "pending"
	ExecutionSuccess = "success"
	ExecutionSkipped = "skipped"
	ExecutionFailed  = "failed"
)

// AutomationRule 自动化规则定义。规则由前端创作，引擎只读
type AutomationRule struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	BoardID       uint           `gorm:"index:idx_rule_board_trigger" json:"board_id"`
	Name          string         `gorm:"not null" json:"name"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	TriggerType   string         `gorm:"index:idx_rule_board_trigger;not null" json:"trigger_type"`
	TriggerConfig datatypes.JSON `json:"trigger_config"` // shape depends on trigger_type: column_id, target_status, ...
	Conditions    datatypes.JSON `json:"conditions"`     // ordered [{column_id,operator,value,logic}]
	Actions       datatypes.JSON `json:"actions"`        // ordered [{type,config}]
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AutomationExecution 一次规则处理记录。到达终态后不可变，
// 重复触发只会复用仍为 pending 的记录
type AutomationExecution struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	RuleID         uint           `gorm:"index:idx_exec_rule_item" json:"rule_id"`
	ItemID         *uint          `gorm:"index:idx_exec_rule_item" json:"item_id"`
	TriggerContext datatypes.JSON `json:"trigger_context"`
	Status         string         `gorm:"index;default:'pending'" json:"status"` // pending, success, skipped, failed
	ErrorMessage   string         `gorm:"type:text" json:"error_message"`
	ActionLog      datatypes.JSON `json:"action_log"` // per-action outcomes, audit only
	ExecutedAt     *time.Time     `json:"executed_at"`
	CreatedAt      time.Time      `json:"created_at"`

	Rule AutomationRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}
