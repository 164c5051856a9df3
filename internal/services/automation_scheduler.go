package services

import (
	"context"
	"encoding/json"
	"time"

	"restorify/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutomationScheduler periodically scans date columns and fires date_reached
// triggers for items whose date is due today. Repeated scans within the same
// day are harmless: the execution layer dedups on (rule, item) while the
// previous execution is pending, and terminal executions are not revived.
type AutomationScheduler struct {
	db         *gorm.DB
	automation *AutomationService
	logger     *logrus.Logger
	cron       *cron.Cron
	entryID    cron.EntryID
}

func NewAutomationScheduler(db *gorm.DB, automation *AutomationService, logger *logrus.Logger) *AutomationScheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationScheduler{
		db:         db,
		automation: automation,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start 按 cron 表达式启动扫描（如 "0 * * * *" 每小时）
func (s *AutomationScheduler) Start(spec string) error {
	id, err := s.cron.AddFunc(spec, func() {
		if err := s.ScanOnce(context.Background()); err != nil {
			s.logger.Warnf("automation scheduler: scan failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()
	s.logger.Infof("automation scheduler started (spec %q)", spec)
	return nil
}

func (s *AutomationScheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("automation scheduler stopped")
}

// ScanOnce walks every active date_reached rule and fires the trigger for
// each item on the rule's board whose configured date column reads today.
// Exported so a deployment can also run scans on demand.
func (s *AutomationScheduler) ScanOnce(ctx context.Context) error {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND is_active = ?", models.TriggerDateReached, true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return err
	}

	today := time.Now().Format("2006-01-02")
	for i := range rules {
		rule := &rules[i]
		var cfg triggerConfig
		if len(rule.TriggerConfig) > 0 {
			if err := json.Unmarshal(rule.TriggerConfig, &cfg); err != nil {
				s.logger.Warnf("automation scheduler: rule %d has invalid trigger_config: %v", rule.ID, err)
				continue
			}
		}
		if cfg.ColumnID == "" {
			s.logger.Warnf("automation scheduler: rule %d (date_reached) has no column_id, skipping", rule.ID)
			continue
		}

		var values []models.ColumnValue
		if err := s.db.WithContext(ctx).
			Joins("JOIN board_items ON board_items.id = column_values.item_id").
			Where("board_items.board_id = ? AND column_values.column_id = ?", rule.BoardID, cfg.ColumnID).
			Find(&values).Error; err != nil {
			s.logger.Warnf("automation scheduler: rule %d: load column values: %v", rule.ID, err)
			continue
		}

		for _, cv := range values {
			dateStr, ok := decodeColumnValue(cv.Value).(string)
			if !ok || len(dateStr) < 10 || dateStr[:10] != today {
				continue
			}
			itemID := cv.ItemID
			if _, err := s.automation.FireTriggers(ctx, models.TriggerDateReached, TriggerContext{
				BoardID:  rule.BoardID,
				ItemID:   &itemID,
				ColumnID: cfg.ColumnID,
				NewValue: dateStr,
			}); err != nil {
				s.logger.Warnf("automation scheduler: fire date_reached for item %d: %v", itemID, err)
			}
		}
	}
	return nil
}
