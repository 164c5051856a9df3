package main

import (
	"fmt"
	"log"
	"os"

	"restorify/internal/config"
	"restorify/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
	cfg := config.Load()

	// 连接数据库（DB_DSN 优先）
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.User{},
		&models.Job{},
		&models.DryingChamber{},
		&models.DryingLog{},
		&models.Board{},
		&models.BoardGroup{},
		&models.BoardColumn{},
		&models.BoardItem{},
		&models.ColumnValue{},
		&models.Subitem{},
		&models.ItemDependency{},
		&models.AutomationRule{},
		&models.AutomationExecution{},
		&models.Notification{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 执行记录按规则/条目/状态查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_rule_status ON automation_executions(rule_id, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_executions_item_status ON automation_executions(item_id, status)")

	// 条目按看板/分组排序
	db.Exec("CREATE INDEX IF NOT EXISTS idx_items_board_group_position ON board_items(board_id, group_id, position)")

	// 干燥读数按分区/时间查询
	db.Exec("CREATE INDEX IF NOT EXISTS idx_drying_logs_chamber_reading ON drying_logs(chamber_id, reading_at)")

	// 工程按状态过滤
	db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)")

	log.Println("Additional indexes created successfully!")

	// 插入默认数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	// 创建默认管理员用户
	var adminUser models.User
	if err := db.Where("username = ?", "admin").First(&adminUser).Error; err != nil {
		adminUser = models.User{
			Username: "admin",
			Email:    "admin@restorify.local",
			Name:     "系统管理员",
			Role:     "admin",
			Status:   "active",
		}
		db.Create(&adminUser)
		log.Println("Created default admin user")
	}

	// 创建默认工程看板
	var board models.Board
	if err := db.Where("name = ?", "Jobs").First(&board).Error; err != nil {
		board = models.Board{Name: "Jobs", Kind: "jobs"}
		db.Create(&board)
		for i, name := range []string{"New Leads", "In Progress", "Completed"} {
			db.Create(&models.BoardGroup{BoardID: board.ID, Name: name, Position: i})
		}
		for _, col := range []models.BoardColumn{
			{BoardID: board.ID, Key: "status", Title: "Status", Type: "status"},
			{BoardID: board.ID, Key: "assignee", Title: "Assignee", Type: "people"},
			{BoardID: board.ID, Key: "due_date", Title: "Due Date", Type: "date"},
			{BoardID: board.ID, Key: "tags", Title: "Tags", Type: "tags"},
			{BoardID: board.ID, Key: "loss_type", Title: "Loss Type", Type: "text"},
		} {
			c := col
			db.Create(&c)
		}
		log.Println("Created default jobs board")
	}
}
