package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/zek/abone/internal/catalog"
	"github.com/zek/abone/internal/clock"
	"github.com/zek/abone/internal/config"
	"github.com/zek/abone/internal/exchange"
	"github.com/zek/abone/internal/money"
	walletdomain "github.com/zek/abone/internal/wallet/domain"
	"github.com/zek/abone/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  walletdomain.Repository

	gateway         *exchange.Gateway
	defaultCurrency string
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    walletdomain.Repository
	Gateway *exchange.Gateway
	Config  config.Config
}

func NewService(p ServiceParam) walletdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		gateway:         p.Gateway,
		defaultCurrency: p.Config.DefaultCurrency,
	}
}

// InTx implements domain.Service. The returned view runs every operation
// against tx, so a surrounding transaction absorbs the ledger writes.
func (s *Service) InTx(tx *gorm.DB) walletdomain.Service {
	bound := *s
	bound.db = tx
	return &bound
}

// OpenWallet implements domain.Service. The insert is an insert-or-ignore
// against the (owner, name) unique index; the loser of a concurrent create
// fetches the winner's row.
func (s *Service) OpenWallet(ctx context.Context, owner catalog.EntityRef, name string) (*walletdomain.Wallet, error) {
	if owner.IsZero() {
		return nil, walletdomain.ErrInvalidOwner
	}

	if name == "" {
		name = s.defaultCurrency
	}
	currency := s.defaultCurrency
	if money.IsCurrencyCode(name) {
		currency = name
	}

	existing, err := s.repo.FindWallet(ctx, s.db, owner, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	wallet := &walletdomain.Wallet{
		ID:        s.genID.Generate(),
		OwnerKind: owner.Kind,
		OwnerID:   owner.ID,
		Name:      name,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// A duplicate-key error means another caller won the create race; fall
	// through and fetch their row.
	if err := s.repo.InsertWallet(ctx, s.db, wallet); err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	created, err := s.repo.FindWallet(ctx, s.db, owner, name)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("open wallet %s/%s: row missing after insert", owner, name)
	}
	return created, nil
}

// Charge implements domain.Service.
func (s *Service) Charge(ctx context.Context, walletID snowflake.ID, amount money.Money, opts walletdomain.TransactionOptions) (*walletdomain.Transaction, error) {
	return s.store(ctx, walletID, amount, opts, true)
}

// Credit implements domain.Service.
func (s *Service) Credit(ctx context.Context, walletID snowflake.ID, amount money.Money, opts walletdomain.TransactionOptions) (*walletdomain.Transaction, error) {
	return s.store(ctx, walletID, amount, opts, false)
}

// store writes one signed transaction and refreshes the cached balance as
// a single atomic unit.
func (s *Service) store(ctx context.Context, walletID snowflake.ID, amount money.Money, opts walletdomain.TransactionOptions, charge bool) (*walletdomain.Transaction, error) {
	if amount.IsNegative() {
		return nil, walletdomain.ErrInvalidAmount
	}

	var transaction *walletdomain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.repo.LockWalletByID(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return walletdomain.ErrWalletNotFound
		}

		meta := cloneMeta(opts.Meta)
		converted, err := s.exchangedAmount(ctx, amount, wallet.Currency, opts.Exchange)
		if err != nil {
			return err
		}
		if !converted.Equal(amount) && amount.IsPositive() {
			meta["exchanged"] = map[string]any{
				"currency": amount.Currency,
				"amount":   amount.Amount,
				"rate":     amount.RatioOf(converted).InexactFloat64(),
			}
		}

		signed := converted
		if charge {
			signed = converted.Negate()
		}

		sum, err := s.repo.SumConfirmed(ctx, tx, wallet.ID)
		if err != nil {
			return err
		}
		balance := sum + signed.Amount
		if charge && balance < 0 && !opts.Force {
			return walletdomain.ErrInsufficientFunds
		}

		transaction, err = s.insert(ctx, tx, wallet, signed, meta, opts)
		if err != nil {
			return err
		}

		if opts.IsConfirmed() {
			return s.repo.UpdateBalance(ctx, tx, wallet.ID, balance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// Transfer implements domain.Service.
func (s *Service) Transfer(ctx context.Context, fromID, toID snowflake.ID, amount money.Money, opts walletdomain.TransactionOptions) (*walletdomain.Transaction, error) {
	if amount.IsNegative() {
		return nil, walletdomain.ErrInvalidAmount
	}
	if opts.Hint == "" {
		opts.Hint = "wallet.transfer"
	}

	var chargeLeg *walletdomain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock in ascending ID order so crossing transfers cannot
		// deadlock.
		firstID, secondID := fromID, toID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := s.repo.LockWalletByID(ctx, tx, firstID)
		if err != nil {
			return err
		}
		second, err := s.repo.LockWalletByID(ctx, tx, secondID)
		if err != nil {
			return err
		}
		from, to := first, second
		if fromID != firstID {
			from, to = second, first
		}
		if from == nil || to == nil {
			return walletdomain.ErrWalletNotFound
		}
		if amount.Currency != from.Currency || amount.Currency != to.Currency {
			return money.ErrCurrencyMismatch
		}

		fromSum, err := s.repo.SumConfirmed(ctx, tx, from.ID)
		if err != nil {
			return err
		}
		if fromSum-amount.Amount < 0 && !opts.Force {
			return walletdomain.ErrInsufficientFunds
		}

		meta := cloneMeta(opts.Meta)
		creditOpts := opts
		creditOpts.Reference = catalog.EntityRef{}
		creditLeg, err := s.insert(ctx, tx, to, amount, meta, creditOpts)
		if err != nil {
			return err
		}

		chargeOpts := opts
		chargeOpts.Reference = catalog.NewRef(walletdomain.EntityKindTransaction, creditLeg.ID)
		chargeLeg, err = s.insert(ctx, tx, from, amount.Negate(), cloneMeta(opts.Meta), chargeOpts)
		if err != nil {
			return err
		}

		backRef := catalog.NewRef(walletdomain.EntityKindTransaction, chargeLeg.ID)
		if err := s.repo.UpdateTransactionReference(ctx, tx, creditLeg.ID, backRef); err != nil {
			return err
		}

		if opts.IsConfirmed() {
			if err := s.repo.UpdateBalance(ctx, tx, from.ID, fromSum-amount.Amount); err != nil {
				return err
			}
			toSum, err := s.repo.SumConfirmed(ctx, tx, to.ID)
			if err != nil {
				return err
			}
			return s.repo.UpdateBalance(ctx, tx, to.ID, toSum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chargeLeg, nil
}

// Balance implements domain.Service.
func (s *Service) Balance(ctx context.Context, walletID snowflake.ID) (money.Money, error) {
	wallet, err := s.repo.FindWalletByID(ctx, s.db, walletID)
	if err != nil {
		return money.Money{}, err
	}
	if wallet == nil {
		return money.Money{}, walletdomain.ErrWalletNotFound
	}
	return wallet.BalanceMoney(), nil
}

// RecalculateBalance implements domain.Service.
func (s *Service) RecalculateBalance(ctx context.Context, walletID snowflake.ID) (money.Money, error) {
	var balance money.Money
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.repo.LockWalletByID(ctx, tx, walletID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return walletdomain.ErrWalletNotFound
		}
		sum, err := s.repo.SumConfirmed(ctx, tx, wallet.ID)
		if err != nil {
			return err
		}
		balance = money.New(sum, wallet.Currency)
		return s.repo.UpdateBalance(ctx, tx, wallet.ID, sum)
	})
	if err != nil {
		return money.Money{}, err
	}
	return balance, nil
}

// Transactions implements domain.Service.
func (s *Service) Transactions(ctx context.Context, walletID snowflake.ID) ([]walletdomain.Transaction, error) {
	return s.repo.ListTransactions(ctx, s.db, walletID)
}

// DeleteTransaction implements domain.Service. The soft delete and the
// balance recomputation share one atomic unit.
func (s *Service) DeleteTransaction(ctx context.Context, transactionID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transaction, err := s.repo.FindTransactionByID(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if transaction == nil {
			return walletdomain.ErrTransactionNotFound
		}
		if _, err := s.repo.LockWalletByID(ctx, tx, transaction.WalletID); err != nil {
			return err
		}
		if err := s.repo.SoftDeleteTransaction(ctx, tx, transaction.ID); err != nil {
			return err
		}
		sum, err := s.repo.SumConfirmed(ctx, tx, transaction.WalletID)
		if err != nil {
			return err
		}
		return s.repo.UpdateBalance(ctx, tx, transaction.WalletID, sum)
	})
}

// LastChargeByReference implements domain.Service.
func (s *Service) LastChargeByReference(ctx context.Context, ref catalog.EntityRef) (*walletdomain.Transaction, error) {
	return s.repo.LastChargeByReference(ctx, s.db, ref)
}

func (s *Service) exchangedAmount(ctx context.Context, amount money.Money, walletCurrency string, allowExchange bool) (money.Money, error) {
	if amount.Currency == walletCurrency {
		return amount, nil
	}
	if !allowExchange {
		return money.Money{}, fmt.Errorf("%w: %s vs %s", money.ErrCurrencyMismatch, amount.Currency, walletCurrency)
	}
	converted, err := s.gateway.Convert(ctx, amount, walletCurrency)
	if err != nil {
		return money.Money{}, err
	}
	if converted.Currency != walletCurrency {
		return money.Money{}, fmt.Errorf("%w: exchanger returned %s", money.ErrCurrencyMismatch, converted.Currency)
	}
	return converted, nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, wallet *walletdomain.Wallet, signed money.Money, meta map[string]any, opts walletdomain.TransactionOptions) (*walletdomain.Transaction, error) {
	processedAt := opts.At
	if processedAt.IsZero() {
		processedAt = s.clock.Now()
	}
	now := s.clock.Now()

	transaction := &walletdomain.Transaction{
		ID:            s.genID.Generate(),
		WalletID:      wallet.ID,
		Amount:        signed.Amount,
		Currency:      signed.Currency,
		Confirmed:     opts.IsConfirmed(),
		ReferenceKind: opts.Reference.Kind,
		ReferenceID:   opts.Reference.ID,
		Meta:          datatypes.JSONMap(meta),
		Hint:          opts.Hint,
		ProcessedAt:   processedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertTransaction(ctx, tx, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
