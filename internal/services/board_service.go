package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"restorify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BoardService 看板/条目管理服务。同时实现自动化引擎的 BoardMutator 接口
type BoardService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	automation *AutomationService
	itemLocks  sync.Map // item id -> *sync.Mutex
}

func NewBoardService(db *gorm.DB, logger *logrus.Logger) *BoardService {
	if logger == nil {
		logger = logrus.New()
	}
	return &BoardService{db: db, logger: logger}
}

// SetAutomationService 注入自动化服务（构造后注入，避免循环依赖）
func (s *BoardService) SetAutomationService(automation *AutomationService) {
	s.automation = automation
}

// lockItem serializes mutation per item. Read-then-write column updates
// (people/tag sets) race without this under concurrent writers.
func (s *BoardService) lockItem(itemID uint) func() {
	v, _ := s.itemLocks.LoadOrStore(itemID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// fire forwards a board event to the automation engine. Automation is
// best-effort relative to the primary operation: failures are logged, never
// returned to the caller.
func (s *BoardService) fire(ctx context.Context, triggerType string, tctx TriggerContext) {
	if s.automation == nil {
		return
	}
	if _, err := s.automation.FireTriggers(ctx, triggerType, tctx); err != nil {
		s.logger.Warnf("board: fire %s: %v", triggerType, err)
	}
}

// ---- board administration ----

type BoardColumnRequest struct {
	Key   string `json:"key" binding:"required"`
	Title string `json:"title"`
	Type  string `json:"type"` // text, status, date, people, tags, number
}

type BoardCreateRequest struct {
	Name    string               `json:"name" binding:"required"`
	Kind    string               `json:"kind"`
	Groups  []string             `json:"groups"`
	Columns []BoardColumnRequest `json:"columns"`
}

// CreateBoard 创建看板及其分组/列定义
func (s *BoardService) CreateBoard(ctx context.Context, req *BoardCreateRequest) (*models.Board, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	kind := req.Kind
	if kind == "" {
		kind = "main"
	}
	board := &models.Board{Name: req.Name, Kind: kind, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return err
		}
		for i, name := range req.Groups {
			group := &models.BoardGroup{BoardID: board.ID, Name: name, Position: i, CreatedAt: time.Now()}
			if err := tx.Create(group).Error; err != nil {
				return err
			}
		}
		for _, col := range req.Columns {
			colType := col.Type
			if colType == "" {
				colType = "text"
			}
			def := &models.BoardColumn{BoardID: board.ID, Key: col.Key, Title: col.Title, Type: colType, CreatedAt: time.Now()}
			if err := tx.Create(def).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// GetBoard 返回看板及分组/列
func (s *BoardService) GetBoard(ctx context.Context, id uint) (*models.Board, error) {
	var board models.Board
	if err := s.db.WithContext(ctx).Preload("Groups").Preload("Columns").First(&board, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("board not found")
		}
		return nil, err
	}
	return &board, nil
}

// ListItems 返回看板条目
func (s *BoardService) ListItems(ctx context.Context, boardID uint) ([]models.BoardItem, error) {
	var items []models.BoardItem
	if err := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("position ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ---- item lifecycle (fires automation triggers) ----

type ItemCreateRequest struct {
	BoardID   uint   `json:"board_id" binding:"required"`
	GroupID   *uint  `json:"group_id"`
	Name      string `json:"name" binding:"required"`
	CreatedBy *uint  `json:"created_by"`
}

// CreateItem 创建条目并触发 item_created
func (s *BoardService) CreateItem(ctx context.Context, req *ItemCreateRequest) (*models.BoardItem, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	item, err := s.InsertItem(ctx, req.BoardID, req.GroupID, req.Name, req.CreatedBy)
	if err != nil {
		return nil, err
	}
	s.fire(ctx, models.TriggerItemCreated, TriggerContext{
		BoardID: item.BoardID,
		ItemID:  &item.ID,
		UserID:  req.CreatedBy,
	})
	return item, nil
}

type ItemUpdateRequest struct {
	Name        *string `json:"name"`
	GroupID     *uint   `json:"group_id"`
	IsCompleted *bool   `json:"is_completed"`
	UserID      *uint   `json:"user_id"`
}

// UpdateItemFields 更新条目字段并触发 item_updated；条目完成时为其下游依赖
// 触发 dependency_completed
func (s *BoardService) UpdateItemFields(ctx context.Context, itemID uint, req *ItemUpdateRequest) (*models.BoardItem, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	var item models.BoardItem
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item not found")
		}
		return nil, err
	}

	patch := map[string]interface{}{}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.GroupID != nil {
		patch["group_id"] = *req.GroupID
	}
	completedNow := false
	if req.IsCompleted != nil {
		patch["is_completed"] = *req.IsCompleted
		completedNow = *req.IsCompleted && !item.IsCompleted
	}
	if len(patch) == 0 {
		return &item, nil
	}
	if err := s.UpdateItem(ctx, itemID, patch); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		return nil, err
	}

	s.fire(ctx, models.TriggerItemUpdated, TriggerContext{
		BoardID: item.BoardID,
		ItemID:  &item.ID,
		UserID:  req.UserID,
	})
	if completedNow {
		s.fireDependencyCompleted(ctx, &item, req.UserID)
	}
	return &item, nil
}

// fireDependencyCompleted 通知所有等待 item 完成的下游条目
func (s *BoardService) fireDependencyCompleted(ctx context.Context, item *models.BoardItem, userID *uint) {
	var deps []models.ItemDependency
	if err := s.db.WithContext(ctx).Where("depends_on_id = ?", item.ID).Find(&deps).Error; err != nil {
		s.logger.Warnf("board: load dependents of item %d: %v", item.ID, err)
		return
	}
	for _, dep := range deps {
		var dependent models.BoardItem
		if err := s.db.WithContext(ctx).First(&dependent, dep.ItemID).Error; err != nil {
			continue
		}
		s.fire(ctx, models.TriggerDependencyCompleted, TriggerContext{
			BoardID:  dependent.BoardID,
			ItemID:   &dependent.ID,
			OldValue: item.ID,
			UserID:   userID,
		})
	}
}

// AddDependency 声明 itemID 依赖 dependsOnID
func (s *BoardService) AddDependency(ctx context.Context, itemID, dependsOnID uint) error {
	if itemID == dependsOnID {
		return fmt.Errorf("item cannot depend on itself")
	}
	dep := &models.ItemDependency{ItemID: itemID, DependsOnID: dependsOnID, CreatedAt: time.Now()}
	return s.db.WithContext(ctx).Create(dep).Error
}

// SetColumnValue 写列值并触发 column_changed；状态列同时触发 status_changed
func (s *BoardService) SetColumnValue(ctx context.Context, itemID uint, columnID string, value interface{}, userID *uint) error {
	var item models.BoardItem
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("item not found")
		}
		return err
	}

	oldValue, err := s.GetColumnValue(ctx, itemID, columnID)
	if err != nil {
		return err
	}
	if err := s.UpsertColumnValue(ctx, itemID, columnID, value); err != nil {
		return err
	}

	tctx := TriggerContext{
		BoardID:  item.BoardID,
		ItemID:   &item.ID,
		ColumnID: columnID,
		OldValue: oldValue,
		NewValue: value,
		UserID:   userID,
	}
	s.fire(ctx, models.TriggerColumnChanged, tctx)
	if s.isStatusColumn(ctx, item.BoardID, columnID) {
		s.fire(ctx, models.TriggerStatusChanged, tctx)
	}
	return nil
}

// isStatusColumn 按列定义判断；看板缺少列定义时退回按约定列名 status 判断
func (s *BoardService) isStatusColumn(ctx context.Context, boardID uint, columnID string) bool {
	var col models.BoardColumn
	err := s.db.WithContext(ctx).Where("board_id = ? AND key = ?", boardID, columnID).First(&col).Error
	if err == nil {
		return col.Type == "status"
	}
	return columnID == "status"
}

// ---- BoardMutator implementation (consumed by the action executor) ----
//
// Mutator writes never re-fire triggers: an automation action mutating an item
// must not cascade into further rule processing, or two rules could loop each
// other forever.

func (s *BoardService) GetItemSnapshot(ctx context.Context, itemID uint) (*ItemSnapshot, error) {
	var item models.BoardItem
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		return nil, fmt.Errorf("item %d: %w", itemID, err)
	}
	var values []models.ColumnValue
	if err := s.db.WithContext(ctx).Where("item_id = ?", itemID).Find(&values).Error; err != nil {
		return nil, fmt.Errorf("item %d values: %w", itemID, err)
	}

	snap := &ItemSnapshot{Item: item, Values: make(map[string]interface{}, len(values))}
	for _, cv := range values {
		snap.Values[cv.ColumnID] = decodeColumnValue(cv.Value)
	}
	return snap, nil
}

func (s *BoardService) GetColumnValue(ctx context.Context, itemID uint, columnID string) (interface{}, error) {
	var cv models.ColumnValue
	err := s.db.WithContext(ctx).Where("item_id = ? AND column_id = ?", itemID, columnID).First(&cv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeColumnValue(cv.Value), nil
}

func (s *BoardService) UpsertColumnValue(ctx context.Context, itemID uint, columnID string, value interface{}) error {
	unlock := s.lockItem(itemID)
	defer unlock()
	return s.upsertColumnValueLocked(ctx, itemID, columnID, value)
}

func (s *BoardService) upsertColumnValueLocked(ctx context.Context, itemID uint, columnID string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal column value: %w", err)
	}
	text := textForValue(value)

	var existing models.ColumnValue
	err = s.db.WithContext(ctx).Where("item_id = ? AND column_id = ?", itemID, columnID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cv := &models.ColumnValue{
			ItemID:    itemID,
			ColumnID:  columnID,
			Value:     datatypes.JSON(raw),
			TextValue: text,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		return s.db.WithContext(ctx).Create(cv).Error
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"value":      datatypes.JSON(raw),
		"text_value": text,
		"updated_at": time.Now(),
	}).Error
}

func (s *BoardService) UpdateItem(ctx context.Context, itemID uint, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.BoardItem{}).Where("id = ?", itemID).Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("item not found")
	}
	return nil
}

func (s *BoardService) InsertItem(ctx context.Context, boardID uint, groupID *uint, name string, createdBy *uint) (*models.BoardItem, error) {
	if name == "" {
		return nil, fmt.Errorf("item name required")
	}
	position, err := s.nextItemPosition(ctx, boardID, groupID)
	if err != nil {
		return nil, err
	}
	item := &models.BoardItem{
		BoardID:   boardID,
		GroupID:   groupID,
		Name:      name,
		Position:  position,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// nextItemPosition 目标分组内 max(position)+1，空分组从 0 开始
func (s *BoardService) nextItemPosition(ctx context.Context, boardID uint, groupID *uint) (int, error) {
	query := s.db.WithContext(ctx).Model(&models.BoardItem{}).Where("board_id = ?", boardID)
	if groupID != nil {
		query = query.Where("group_id = ?", *groupID)
	} else {
		query = query.Where("group_id IS NULL")
	}
	var max *int
	if err := query.Select("MAX(position)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (s *BoardService) InsertSubitem(ctx context.Context, itemID uint, name string) (*models.Subitem, error) {
	if name == "" {
		return nil, fmt.Errorf("subitem name required")
	}
	var max *int
	if err := s.db.WithContext(ctx).Model(&models.Subitem{}).
		Where("item_id = ?", itemID).
		Select("MAX(position)").Scan(&max).Error; err != nil {
		return nil, err
	}
	position := 0
	if max != nil {
		position = *max + 1
	}
	sub := &models.Subitem{
		ItemID:      itemID,
		Name:        name,
		Position:    position,
		IsCompleted: false,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// AppendToColumnSet treats the column as a set and appends value only if
// absent, then writes back the array plus a joined human-readable text.
// Historical data stored scalars or stringified JSON arrays in these columns;
// all three shapes normalize to a set here. The whole read-modify-write runs
// under the item lock.
func (s *BoardService) AppendToColumnSet(ctx context.Context, itemID uint, columnID string, value interface{}) error {
	unlock := s.lockItem(itemID)
	defer unlock()

	var cv models.ColumnValue
	var current interface{}
	err := s.db.WithContext(ctx).Where("item_id = ? AND column_id = ?", itemID, columnID).First(&cv).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil {
		current = decodeColumnValue(cv.Value)
	}

	set := normalizeToSet(current)
	key := fmt.Sprintf("%v", value)
	for _, el := range set {
		if fmt.Sprintf("%v", el) == key {
			return nil // already present, idempotent
		}
	}
	set = append(set, value)
	return s.upsertColumnValueLocked(ctx, itemID, columnID, set)
}

// normalizeToSet coerces legacy column shapes into a slice.
func normalizeToSet(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	case string:
		if strings.HasPrefix(strings.TrimSpace(t), "[") {
			var arr []interface{}
			if err := json.Unmarshal([]byte(t), &arr); err == nil {
				return arr
			}
		}
		if t == "" {
			return nil
		}
		return []interface{}{t}
	default:
		return []interface{}{t}
	}
}

func decodeColumnValue(raw datatypes.JSON) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		// Legacy rows stored bare text; surface it as a string.
		return string(raw)
	}
	return v
}

// textForValue 生成人类可读文本（数组以逗号连接）
func textForValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			parts = append(parts, fmt.Sprintf("%v", el))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}
