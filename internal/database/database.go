// Package database owns the gorm connection shared by all modules.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/logger"
)

var DB *gorm.DB

// Initialize opens the database connection described by the configuration
// and migrates the shared tables. Module-owned tables migrate through the
// module registry.
func Initialize() error {
	cfg := config.Get().Database

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Type {
	case "postgres":
		db, err = connectPostgres(cfg)
	case "sqlite", "":
		db, err = connectSQLite(cfg)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if err := db.AutoMigrate(&ReachabilityRecord{}, &CachedTrack{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	DB = db
	logger.Info("database initialized", []logger.Field{logger.String("type", cfg.Type)})
	return nil
}

func connectPostgres(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port)

	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func connectSQLite(cfg config.DatabaseConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "./data/tunegrab.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}

	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

// GetDB returns the database instance.
func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the global database handle. Intended for tests.
func SetDB(db *gorm.DB) {
	DB = db
}
