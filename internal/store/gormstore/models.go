package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet represents the wallets table. One row per user; the row is the
// per-user serialization point for all balance mutations.
type Wallet struct {
	UserID    string    `gorm:"primaryKey"`
	Balance   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// Transaction mirrors the transactions table (append-only).
type Transaction struct {
	TransactionID string    `gorm:"type:uuid;primaryKey"`
	UserID        string    `gorm:"not null;index:idx_transactions_user_created,priority:1"`
	Type          string    `gorm:"not null"`
	Amount        int64     `gorm:"not null"`
	BalanceAfter  int64     `gorm:"not null"`
	Reference     string    `gorm:"not null"`
	Note          string    `gorm:""`
	CreatedAt     time.Time `gorm:"not null;index:idx_transactions_user_created,priority:2"`
}

func (Transaction) TableName() string { return "transactions" }

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// Bet mirrors the bets table.
type Bet struct {
	BetID     string         `gorm:"type:uuid;primaryKey"`
	UserID    string         `gorm:"not null;index:idx_bets_user_created,priority:1"`
	Game      string         `gorm:"not null"`
	Stake     int64          `gorm:"not null"`
	Status    string         `gorm:"not null;index"`
	Payout    int64          `gorm:"not null"`
	Details   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;index:idx_bets_user_created,priority:2"`
	SettledAt *time.Time     `gorm:""`
}

func (Bet) TableName() string { return "bets" }

func (bet *Bet) BeforeCreate(tx *gorm.DB) error {
	if bet.BetID == "" {
		bet.BetID = uuid.NewString()
	}
	return nil
}
