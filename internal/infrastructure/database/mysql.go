package database

import (
	"fmt"
	"log"
	"time"

	"github.com/backmoon7/webhookengine/internal/config"
	"github.com/backmoon7/webhookengine/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL opens the connection pool and migrates the engine's tables.
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("connect mysql: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("get underlying db: %v", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(
		&model.WebhookEventEntry{},
		&model.PaymentRecord{},
		&model.SubscriptionRecord{},
		&model.RefundRecord{},
		&model.OutboxMessage{},
		&model.ReconcileCursor{},
	)
	if err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	DB = db
	log.Println("mysql connected")
	return db
}
