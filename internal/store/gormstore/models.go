package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WalletAccount represents the wallet_accounts table. One row per user; the
// balance columns are caches over the lot and freeze tables.
type WalletAccount struct {
	UserID    string          `gorm:"primaryKey"`
	Available decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Frozen    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Pending   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Status    string          `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (WalletAccount) TableName() string { return "wallet_accounts" }

// WalletLot mirrors the wallet_lots table.
type WalletLot struct {
	LotID      string          `gorm:"type:uuid;primaryKey"`
	UserID     string          `gorm:"not null;index:idx_wallet_lots_user_acquired,priority:1"`
	Source     string          `gorm:"not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Remaining  decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency   string          `gorm:"not null"`
	AcquiredAt time.Time       `gorm:"not null;index:idx_wallet_lots_user_acquired,priority:2"`
	ExpiresAt  *time.Time      `gorm:""`
	Status     string          `gorm:"not null"`
	CreatedAt  time.Time       `gorm:"not null"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

func (WalletLot) TableName() string { return "wallet_lots" }

func (lot *WalletLot) BeforeCreate(tx *gorm.DB) error {
	if lot.LotID == "" {
		lot.LotID = uuid.NewString()
	}
	return nil
}

// WalletLotFreeze mirrors the wallet_lot_freezes table. One row per lot
// reserved by a pending transaction.
type WalletLotFreeze struct {
	FreezeID      string          `gorm:"type:uuid;primaryKey"`
	LotID         string          `gorm:"type:uuid;not null;index"`
	UserID        string          `gorm:"not null"`
	OrderRef      string          `gorm:"not null"`
	TransactionID string          `gorm:"type:uuid;not null;index:idx_wallet_freezes_transaction"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Status        string          `gorm:"not null;index:idx_wallet_freezes_status_expires,priority:1"`
	ExpiresAt     time.Time       `gorm:"not null;index:idx_wallet_freezes_status_expires,priority:2"`
	ConsumedAt    *time.Time      `gorm:""`
	ReleasedAt    *time.Time      `gorm:""`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (WalletLotFreeze) TableName() string { return "wallet_lot_freezes" }

func (freeze *WalletLotFreeze) BeforeCreate(tx *gorm.DB) error {
	if freeze.FreezeID == "" {
		freeze.FreezeID = uuid.NewString()
	}
	return nil
}

// WalletTransaction mirrors the wallet_transactions journal table. Rows are
// append-only apart from status and gateway_ref updates.
type WalletTransaction struct {
	TransactionID string          `gorm:"type:uuid;primaryKey"`
	UserID        string          `gorm:"not null;index:idx_wallet_txns_user_created,priority:1"`
	Direction     string          `gorm:"not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency      string          `gorm:"not null"`
	Type          string          `gorm:"not null"`
	Status        string          `gorm:"not null"`
	RefKind       string          `gorm:"not null"`
	RefID         string          `gorm:"not null"`
	GatewayRef    string          `gorm:"not null;default:''"`
	Allocations   datatypes.JSON  `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_wallet_txns_user_created,priority:2"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (transaction *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}
