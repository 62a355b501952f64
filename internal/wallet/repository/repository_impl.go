package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() walletdomain.Repository {
	return &repo{}
}

func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, wallet *walletdomain.Wallet) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallets (
			id, owner_kind, owner_id, name, currency, balance, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_kind, owner_id, name) DO NOTHING`,
		wallet.ID,
		wallet.OwnerKind,
		wallet.OwnerID,
		wallet.Name,
		wallet.Currency,
		wallet.Balance,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	).Error
}

func (r *repo) FindWallet(ctx context.Context, db *gorm.DB, owner catalog.EntityRef, name string) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).
		Where("owner_kind = ? AND owner_id = ? AND name = ?", owner.Kind, owner.ID, name).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) FindWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*walletdomain.Wallet, error) {
	var wallet walletdomain.Wallet
	err := db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// LockWalletByID takes FOR UPDATE on dialects with row locks; sqlite
// serializes writers on its own and rejects the clause.
func (r *repo) LockWalletByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*walletdomain.Wallet, error) {
	tx := db.WithContext(ctx)
	if !strings.EqualFold(db.Dialector.Name(), "sqlite") {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var wallet walletdomain.Wallet
	err := tx.Where("id = ?", id).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, walletID snowflake.ID, balance int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE wallets SET balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		balance,
		walletID,
	).Error
}

func (r *repo) SumConfirmed(ctx context.Context, db *gorm.DB, walletID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE wallet_id = ? AND confirmed = ? AND deleted_at IS NULL`,
		walletID,
		true,
	).Scan(&sum).Error
	return sum, err
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, transaction *walletdomain.Transaction) error {
	return db.WithContext(ctx).Create(transaction).Error
}

func (r *repo) UpdateTransactionReference(ctx context.Context, db *gorm.DB, transactionID snowflake.ID, ref catalog.EntityRef) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions SET reference_kind = ?, reference_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		ref.Kind,
		ref.ID,
		transactionID,
	).Error
}

func (r *repo) FindTransactionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*walletdomain.Transaction, error) {
	var transaction walletdomain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, walletID snowflake.ID) ([]walletdomain.Transaction, error) {
	var transactions []walletdomain.Transaction
	err := db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id DESC").
		Find(&transactions).Error
	return transactions, err
}

func (r *repo) SoftDeleteTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&walletdomain.Transaction{}, "id = ?", id).Error
}

func (r *repo) LastChargeByReference(ctx context.Context, db *gorm.DB, ref catalog.EntityRef) (*walletdomain.Transaction, error) {
	var transaction walletdomain.Transaction
	err := db.WithContext(ctx).
		Where("reference_kind = ? AND reference_id = ? AND amount <= 0", ref.Kind, ref.ID).
		Order("id DESC").
		First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}
