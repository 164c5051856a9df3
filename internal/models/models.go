package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Phone     string         `json:"phone"`
	Role      string         `gorm:"default:'tech'" json:"role"`     // tech, pm, estimator, admin
	Status    string         `gorm:"default:'active'" json:"status"` // active, inactive
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Job 修复工程（水损/火损等）
type Job struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Number       string         `gorm:"unique;not null" json:"number"`
	CustomerName string         `gorm:"not null" json:"customer_name"`
	Address      string         `json:"address"`
	LossType     string         `gorm:"default:'water'" json:"loss_type"` // water, fire, mold, storm
	PolicyNumber string         `json:"policy_number"`
	Carrier      string         `json:"carrier"`
	Status       string         `gorm:"default:'open'" json:"status"` // open, drying, monitoring, invoiced, closed
	BoardItemID  *uint          `gorm:"index" json:"board_item_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Chambers []DryingChamber `gorm:"foreignKey:JobID" json:"chambers,omitempty"`
}

// DryingChamber 干燥分区（按房间/区域划分）
type DryingChamber struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobID     uint      `gorm:"index" json:"job_id"`
	Name      string    `gorm:"not null" json:"name"`
	TargetGPP float64   `json:"target_gpp"` // 达标颗粒水含量
	CreatedAt time.Time `json:"created_at"`

	Logs []DryingLog `gorm:"foreignKey:ChamberID" json:"logs,omitempty"`
}

// DryingLog 干湿度读数记录
type DryingLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChamberID uint      `gorm:"index" json:"chamber_id"`
	TempF     float64   `json:"temp_f"`
	RH        float64   `json:"rh"`
	GPP       float64   `json:"gpp"`
	Note      string    `json:"note"`
	ReadingAt time.Time `gorm:"index" json:"reading_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Board 看板
type Board struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Kind      string         `gorm:"default:'main'" json:"kind"` // main, jobs, subboard
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Groups  []BoardGroup  `gorm:"foreignKey:BoardID" json:"groups,omitempty"`
	Columns []BoardColumn `gorm:"foreignKey:BoardID" json:"columns,omitempty"`
}

// BoardGroup 看板分组
type BoardGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   uint      `gorm:"index" json:"board_id"`
	Name      string    `gorm:"not null" json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// BoardColumn 列定义，Key 在看板内唯一（如 status、priority、due_date）
type BoardColumn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BoardID   uint      `gorm:"index;uniqueIndex:idx_board_column_key" json:"board_id"`
	Key       string    `gorm:"uniqueIndex:idx_board_column_key;not null" json:"key"`
	Title     string    `json:"title"`
	Type      string    `gorm:"default:'text'" json:"type"` // text, status, date, people, tags, number
	CreatedAt time.Time `json:"created_at"`
}

// BoardItem 看板条目
type BoardItem struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	BoardID     uint           `gorm:"index" json:"board_id"`
	GroupID     *uint          `gorm:"index" json:"group_id"`
	Name        string         `gorm:"not null" json:"name"`
	Position    int            `json:"position"`
	IsCompleted bool           `gorm:"default:false" json:"is_completed"`
	CreatedBy   *uint          `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Values   []ColumnValue `gorm:"foreignKey:ItemID" json:"values,omitempty"`
	Subitems []Subitem     `gorm:"foreignKey:ItemID" json:"subitems,omitempty"`
}

// ColumnValue 条目的列值。Value 保存原始 JSON，TextValue 为人类可读文本
type ColumnValue struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ItemID    uint           `gorm:"index;uniqueIndex:idx_item_column" json:"item_id"`
	ColumnID  string         `gorm:"uniqueIndex:idx_item_column;not null" json:"column_id"`
	Value     datatypes.JSON `json:"value"`
	TextValue string         `json:"text_value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Subitem 子条目（检查项/任务）
type Subitem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ItemID      uint      `gorm:"index" json:"item_id"`
	Name        string    `gorm:"not null" json:"name"`
	Position    int       `json:"position"`
	IsCompleted bool      `gorm:"default:false" json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ItemDependency 条目依赖：item 等待 depends_on 完成
type ItemDependency struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ItemID      uint      `gorm:"index" json:"item_id"`
	DependsOnID uint      `gorm:"index" json:"depends_on_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification 站内/外发通知记录
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    *uint      `gorm:"index" json:"user_id"`
	ItemID    *uint      `gorm:"index" json:"item_id"`
	Title     string     `gorm:"not null" json:"title"`
	Body      string     `gorm:"type:text" json:"body"`
	Channel   string     `gorm:"default:'in_app'" json:"channel"` // in_app, webhook
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `json:"created_at"`
}
