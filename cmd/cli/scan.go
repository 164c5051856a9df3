package cli

import (
	"context"
	"fmt"

	"restorify/internal/config"
	"restorify/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one date_reached scan and exit",
	Long: `Walks every active date_reached automation rule and fires the trigger
for items whose date column reads today. Useful for cron-less deployments
and for backfilling after downtime.`,
	Run: scan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func scan(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		logrus.Fatalf("DB connect failed: %v", err)
	}

	appLogger := logrus.StandardLogger()
	boardService := services.NewBoardService(db, appLogger)
	notificationService := services.NewNotificationService(db, appLogger, cfg.Notifications.WebhookURL, cfg.Notifications.Timeout)
	automationService := services.NewAutomationService(db, appLogger, boardService, notificationService)
	if cfg.Automation.ProcessTimeout > 0 {
		automationService.SetProcessTimeout(cfg.Automation.ProcessTimeout)
	}
	boardService.SetAutomationService(automationService)

	scheduler := services.NewAutomationScheduler(db, automationService, appLogger)
	if err := scheduler.ScanOnce(context.Background()); err != nil {
		logrus.Fatalf("Scan failed: %v", err)
	}
	logrus.Info("Scan completed")
}
