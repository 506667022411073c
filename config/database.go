package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/models"
)

var db *gorm.DB

// InitDatabase connects using configuration values, migrates every model and seeds permissions.
// Any failure is fatal.
func InitDatabase() *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	var err error
	db, err = OpenDatabase(cfg.DBDriver, dsnFor(cfg), cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	return db
}

// OpenDatabase opens a gorm connection for driver ("mysql" or "sqlite") and verifies it with a ping.
func OpenDatabase(driver, dsn, logLevel string) (*gorm.DB, error) {
	// Configure GORM logger: derive level from app LogLevel and raise slow-sql threshold to reduce noise
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(logLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
	}

	var dialector gorm.Dialector
	switch driver {
	case "mysql", "":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if driver == "sqlite" {
		// a single writer keeps in-memory shared-cache databases consistent
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	// Ping at startup so network/auth problems surface before the first query
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return conn, nil
}

// Migrate creates or extends tables for every model and makes sure all permission rows exist.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return SeedPermissions(conn)
}

// SeedPermissions inserts any missing row for auth.AllPermissions.
func SeedPermissions(conn *gorm.DB) error {
	perms := make([]models.Permission, 0, len(auth.AllPermissions))
	for _, p := range auth.AllPermissions {
		perms = append(perms, models.Permission{Codename: p.Codename, Name: p.Name})
	}
	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "codename"}},
		DoNothing: true,
	}).Create(&perms).Error
	if err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	return nil
}

func dsnFor(cfg AppConfig) string {
	if cfg.DatabaseURI != "" {
		return cfg.DatabaseURI
	}
	if cfg.DBDriver == "sqlite" {
		return cfg.DBName + ".db"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
