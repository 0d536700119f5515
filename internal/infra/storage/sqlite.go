package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stablecoin_go/internal/domain"
)

// Storage persists the engine journal, position snapshots and liquidation
// history in SQLite. It implements domain.Journal and
// domain.LiquidationRecorder.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
func NewStorage(path string) (*Storage, error) {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto Migration
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.JournalRecord{},
		&domain.PositionRecord{},
		&domain.DebtRecord{},
		&domain.LiquidationRecord{},
	)
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// Append writes one committed operation. A sequence number can be written
// only once.
func (s *Storage) Append(rec *domain.JournalRecord) error {
	return s.db.Create(rec).Error
}

// LoadJournal returns every journal record in sequence order.
func (s *Storage) LoadJournal() ([]*domain.JournalRecord, error) {
	var records []*domain.JournalRecord
	err := s.db.Order("seq asc").Find(&records).Error
	return records, err
}

// LastSeq returns the highest journaled sequence number, 0 when empty.
func (s *Storage) LastSeq() (uint64, error) {
	var rec domain.JournalRecord
	err := s.db.Order("seq desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return rec.Seq, err
}

// ======================================================================================
// Position Snapshot Operations
// ======================================================================================

// SavePositions replaces the stored snapshot with snaps.
func (s *Storage) SavePositions(snaps []domain.PositionSnapshot) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&domain.PositionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&domain.DebtRecord{}).Error; err != nil {
			return err
		}
		for _, snap := range snaps {
			user := snap.User.Hex()
			if !snap.Debt.IsZero() {
				if err := tx.Save(&domain.DebtRecord{User: user, Amount: snap.Debt.Dec(), UpdatedAt: now}).Error; err != nil {
					return err
				}
			}
			for asset, amount := range snap.Collateral {
				rec := &domain.PositionRecord{User: user, Asset: asset.Hex(), Amount: amount.Dec(), UpdatedAt: now}
				if err := tx.Save(rec).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetPosition retrieves a stored collateral position.
func (s *Storage) GetPosition(user, asset string) (*domain.PositionRecord, error) {
	var rec domain.PositionRecord
	err := s.db.First(&rec, "user = ? AND asset = ?", user, asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &rec, err
}

// GetDebt retrieves a stored debt position.
func (s *Storage) GetDebt(user string) (*domain.DebtRecord, error) {
	var rec domain.DebtRecord
	err := s.db.First(&rec, "user = ?", user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

// ======================================================================================
// Liquidation History
// ======================================================================================

// RecordLiquidation stores one liquidation event.
func (s *Storage) RecordLiquidation(rec *domain.LiquidationRecord) error {
	return s.db.Create(rec).Error
}

// ListLiquidations returns the newest liquidations first. An empty user
// lists all accounts; limit <= 0 means no limit.
func (s *Storage) ListLiquidations(user string, limit int) ([]domain.LiquidationRecord, error) {
	q := s.db.Order("seq desc")
	if user != "" {
		q = q.Where("user = ?", user)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []domain.LiquidationRecord
	err := q.Find(&recs).Error
	return recs, err
}
