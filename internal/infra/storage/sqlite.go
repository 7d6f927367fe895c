package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"phx_market/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Archive keeps every computed price tick and operation in SQLite, beyond the
// bounded window of the shared state document. It is local to one process.
type Archive struct {
	db *gorm.DB
}

// NewArchive opens (or creates) the archive at path. An empty path resolves
// to the per-user data directory.
func NewArchive(path string) (*Archive, error) {
	if path == "" {
		resolved, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = resolved
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.PriceTick{}, &domain.OperationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Archive{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "PhxMarket", "data", "archive.db"), nil
}

// Close releases the underlying connection.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Tick Operations
// ======================================================================================

// RecordTick appends a computed price sample
func (a *Archive) RecordTick(tick *domain.PriceTick) error {
	return a.db.Create(tick).Error
}

// RecentTicks returns up to limit of the newest ticks, oldest first
func (a *Archive) RecentTicks(limit int) ([]domain.PriceTick, error) {
	var ticks []domain.PriceTick
	if err := a.db.Order("id desc").Limit(limit).Find(&ticks).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}
	return ticks, nil
}

// TickCount returns the number of archived ticks
func (a *Archive) TickCount() (int64, error) {
	var n int64
	err := a.db.Model(&domain.PriceTick{}).Count(&n).Error
	return n, err
}

// ======================================================================================
// Operation Records
// ======================================================================================

// RecordOperation stores an operation; re-recording the same ID updates it
func (a *Archive) RecordOperation(op *domain.OperationRecord) error {
	return a.db.Save(op).Error
}

// Operations returns up to limit operations, newest first
func (a *Archive) Operations(limit int) ([]domain.OperationRecord, error) {
	var ops []domain.OperationRecord
	err := a.db.Order("created_at desc").Limit(limit).Find(&ops).Error
	return ops, err
}
