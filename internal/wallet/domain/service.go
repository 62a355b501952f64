package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/money"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrWalletNotFound      = errors.New("wallet_not_found")
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrInvalidOwner        = errors.New("invalid_owner")
)

// TransactionOptions tune a single charge/credit/transfer.
type TransactionOptions struct {
	// Confirmed defaults to true; unconfirmed rows do not touch the cached
	// balance until confirmed.
	Confirmed *bool
	// Reference links the row to the entity that caused it.
	Reference catalog.EntityRef
	Meta      map[string]any
	Hint      string
	// At overrides the processed timestamp; zero means now.
	At time.Time
	// Force skips the insufficient-funds check, allowing negative balances.
	Force bool
	// Exchange permits converting a foreign-currency amount into the
	// wallet's currency through the exchange gateway.
	Exchange bool
}

func (o TransactionOptions) IsConfirmed() bool {
	return o.Confirmed == nil || *o.Confirmed
}

type Service interface {
	// OpenWallet returns the wallet for (owner, name), creating it if
	// missing. Concurrent calls for the same key resolve to one wallet.
	OpenWallet(ctx context.Context, owner catalog.EntityRef, name string) (*Wallet, error)
	// Charge debits the wallet by a non-negative magnitude.
	Charge(ctx context.Context, walletID snowflake.ID, amount money.Money, opts TransactionOptions) (*Transaction, error)
	// Credit records a positive transaction; credits always succeed.
	Credit(ctx context.Context, walletID snowflake.ID, amount money.Money, opts TransactionOptions) (*Transaction, error)
	// Transfer atomically pairs a charge on from with a credit on to,
	// cross-referencing the two rows. Returns the charge leg.
	Transfer(ctx context.Context, fromID, toID snowflake.ID, amount money.Money, opts TransactionOptions) (*Transaction, error)
	// Balance returns the cached balance, recomputing it when absent.
	Balance(ctx context.Context, walletID snowflake.ID) (money.Money, error)
	// RecalculateBalance recomputes the balance from confirmed, non-deleted
	// transactions and refreshes the cache.
	RecalculateBalance(ctx context.Context, walletID snowflake.ID) (money.Money, error)
	Transactions(ctx context.Context, walletID snowflake.ID) ([]Transaction, error)
	// DeleteTransaction soft-deletes a row and recomputes the balance.
	DeleteTransaction(ctx context.Context, transactionID snowflake.ID) error
	// LastChargeByReference returns the newest charge (amount <= 0)
	// referencing the given entity, or nil.
	LastChargeByReference(ctx context.Context, ref catalog.EntityRef) (*Transaction, error)

	// InTx returns a view of the service bound to an open transaction so
	// callers can compose ledger writes with their own atomic units.
	InTx(tx *gorm.DB) Service
}
