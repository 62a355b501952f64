package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"gorm.io/gorm"
)

type Repository interface {
	InsertWallet(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	FindWallet(ctx context.Context, db *gorm.DB, owner catalog.EntityRef, name string) (*Wallet, error)
	FindWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Wallet, error)
	// LockWalletByID reads the wallet under a row lock so the caller's
	// transaction serializes balance math against concurrent writers.
	LockWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Wallet, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, walletID snowflake.ID, balance int64) error
	SumConfirmed(ctx context.Context, db *gorm.DB, walletID snowflake.ID) (int64, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	UpdateTransactionReference(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, ref catalog.EntityRef) error
	FindTransactionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]Transaction, error)
	SoftDeleteTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	LastChargeByReference(ctx context.Context, db *gorm.DB, ref catalog.EntityRef) (*Transaction, error)
}
