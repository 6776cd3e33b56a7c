package models

import (
	"fmt"

	"github.com/longtails/freemasons/internal/config"
	"github.com/longtails/freemasons/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.DatabaseConfig) error {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.GormLogger(gormlogger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY
		// between the scheduler and request goroutines.
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	DB = db
	return nil
}

func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate registers the custom join tables and migrates every table the
// tracker owns.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Member{}, "Followers", &MemberFollower{}); err != nil {
		return fmt.Errorf("setup member_followers: %w", err)
	}
	if err := db.SetupJoinTable(&Member{}, "Following", &MemberFollowing{}); err != nil {
		return fmt.Errorf("setup member_following: %w", err)
	}
	if err := db.SetupJoinTable(&Project{}, "Members", &ProjectMember{}); err != nil {
		return fmt.Errorf("setup project_members: %w", err)
	}

	return db.AutoMigrate(
		&TwitterUser{},
		&Member{},
		&Project{},
		&MemberFollower{},
		&MemberFollowing{},
		&ProjectMember{},
		&SyncLog{},
		&SchedulerLock{},
	)
}

func GetDB() *gorm.DB {
	return DB
}
