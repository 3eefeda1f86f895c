package database

import (
	"fmt"
	"time"

	"checkin-companion/internal/model"
	"checkin-companion/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接。连接失败时返回错误，由调用方决定是否降级到本地存储。
func InitMySQL(dsn string) error {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	DB = db
	log.Info("MySQL database connected successfully")
	return nil
}

// AutoMigrate 创建或更新 participants、daily_sessions、messages 三张表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Participant{}, &model.DailySession{}, &model.Message{})
}
