// Package domain contains persistence models and contracts for the money
// ledger: wallets and their transactions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/money"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet is a named, currency-scoped money container owned by an account.
// Balance is a cache over the confirmed, non-deleted transactions; the sum
// of those rows is always the source of truth.
type Wallet struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OwnerKind string       `gorm:"type:text;not null;uniqueIndex:ux_wallets_owner_name,priority:1"`
	OwnerID   snowflake.ID `gorm:"not null;uniqueIndex:ux_wallets_owner_name,priority:2"`
	Name      string       `gorm:"type:text;not null;uniqueIndex:ux_wallets_owner_name,priority:3"`
	Currency  string       `gorm:"type:text;not null"`
	Balance   int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) Owner() catalog.EntityRef {
	return catalog.EntityRef{Kind: w.OwnerKind, ID: w.OwnerID}
}

func (w *Wallet) BalanceMoney() money.Money {
	return money.New(w.Balance, w.Currency)
}

// Transaction is a signed money movement against a wallet. Negative amounts
// are charges, positive amounts credits. Rows are immutable once confirmed,
// apart from soft deletion; the amount currency always equals the wallet
// currency (conversion happens before the row is written).
type Transaction struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	WalletID      snowflake.ID      `gorm:"not null;index"`
	Amount        int64             `gorm:"not null"`
	Currency      string            `gorm:"type:text;not null"`
	Confirmed     bool              `gorm:"not null;default:true"`
	ReferenceKind string            `gorm:"type:text;index:ix_transactions_reference,priority:1"`
	ReferenceID   snowflake.ID      `gorm:"index:ix_transactions_reference,priority:2"`
	Meta          datatypes.JSONMap `gorm:"type:jsonb"`
	Hint          string            `gorm:"type:text"`
	ProcessedAt   time.Time         `gorm:"not null"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt     gorm.DeletedAt    `gorm:"index"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) AmountMoney() money.Money {
	return money.New(t.Amount, t.Currency)
}

func (t *Transaction) Reference() catalog.EntityRef {
	return catalog.EntityRef{Kind: t.ReferenceKind, ID: t.ReferenceID}
}

// EntityKindTransaction is the reference kind used to pair the two legs of
// a transfer.
const EntityKindTransaction = "transaction"
