package domain

import (
	"time"
)

// JournalRecord is one committed engine operation (the write-ahead log).
type JournalRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Op        OpKind    `gorm:"type:varchar(32);index" json:"op"`
	Caller    string    `gorm:"type:char(42);index" json:"caller"`
	Deltas    []Delta   `gorm:"serializer:json" json:"deltas"`
	CreatedAt time.Time `json:"created_at"`
}

func (JournalRecord) TableName() string { return "engine_journal" }

// PositionRecord is the persisted snapshot of one collateral position.
type PositionRecord struct {
	User      string    `gorm:"primaryKey;type:char(42)" json:"user"`
	Asset     string    `gorm:"primaryKey;type:char(42)" json:"asset"`
	Amount    string    `gorm:"type:varchar(80);not null" json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PositionRecord) TableName() string { return "collateral_positions" }

// DebtRecord is the persisted snapshot of one user's minted debt.
type DebtRecord struct {
	User      string    `gorm:"primaryKey;type:char(42)" json:"user"`
	Amount    string    `gorm:"type:varchar(80);not null" json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DebtRecord) TableName() string { return "debt_positions" }

// LiquidationRecord is the history entry written for every liquidation.
type LiquidationRecord struct {
	ID                   string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Seq                  uint64    `gorm:"index" json:"seq"`
	Liquidator           string    `gorm:"type:char(42);index" json:"liquidator"`
	User                 string    `gorm:"type:char(42);index" json:"user"`
	Asset                string    `gorm:"type:char(42)" json:"asset"`
	DebtCovered          string    `gorm:"type:varchar(80)" json:"debt_covered"`
	CollateralSeized     string    `gorm:"type:varchar(80)" json:"collateral_seized"`
	Bonus                string    `gorm:"type:varchar(80)" json:"bonus"`
	StartingHealthFactor string    `gorm:"type:varchar(80)" json:"starting_health_factor"`
	EndingHealthFactor   string    `gorm:"type:varchar(80)" json:"ending_health_factor"`
	CreatedAt            time.Time `json:"created_at"`
}

func (LiquidationRecord) TableName() string { return "liquidations" }
