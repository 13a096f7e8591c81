package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mverkhovyn/wagerhouse/pkg/wager"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintWalletPrimary = "wallets_pkey"
	defaultDetailsJSON      = "{}"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	postgresDialectName     = "postgres"
	errorOperationStore     = "store"
	errorSubjectWallet      = "wallet"
	errorSubjectTransaction = "transaction"
	errorSubjectBet         = "bet"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeSettle         = "settle"
	errorCodeUpdate         = "update"
)

// Store implements wager.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Used for sqlite; postgres schemas are managed
// externally.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Wallet{}, &Transaction{}, &Bet{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wager.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateWallet(ctx context.Context, wallet wager.Wallet) error {
	model := Wallet{
		UserID:    wallet.UserID,
		Balance:   wallet.Balance,
		UpdatedAt: wallet.UpdatedAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isWalletConflict(err) {
		return wrapStoreError(errorSubjectWallet, errorCodeDuplicate, wager.ErrWalletExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWallet(ctx context.Context, userID string) (wager.Wallet, error) {
	return store.getWallet(ctx, userID, false)
}

func (store *Store) GetWalletForUpdate(ctx context.Context, userID string) (wager.Wallet, error) {
	return store.getWallet(ctx, userID, true)
}

func (store *Store) getWallet(ctx context.Context, userID string, forUpdate bool) (wager.Wallet, error) {
	query := store.db.WithContext(ctx)
	// sqlite has no row locks; its single-writer transactions already
	// serialize wallet mutations.
	if forUpdate && store.db.Dialector.Name() == postgresDialectName {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model Wallet
	err := query.Where("user_id = ?", userID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wager.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wager.ErrWalletNotFound)
		}
		return wager.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return wager.Wallet{
		UserID:    model.UserID,
		Balance:   model.Balance,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

func (store *Store) UpdateWalletBalance(ctx context.Context, userID string, balance int64, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"balance": balance, "updated_at": at})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, wager.ErrWalletNotFound)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wager.Transaction) error {
	model := Transaction{
		TransactionID: transaction.TransactionID,
		UserID:        transaction.UserID,
		Type:          transaction.Type.String(),
		Amount:        transaction.Amount,
		BalanceAfter:  transaction.BalanceAfter,
		Reference:     transaction.Reference,
		Note:          transaction.Note,
		CreatedAt:     transaction.CreatedAt,
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID string, before wager.PageKey, limit int) ([]wager.Transaction, error) {
	query := store.db.WithContext(ctx).Where("user_id = ?", userID)
	if !before.IsZero() {
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND transaction_id < ?))",
			before.CreatedBefore, before.CreatedBefore, before.IDBefore,
		)
	}
	var rows []Transaction
	err := query.
		Order("created_at DESC, transaction_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]wager.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) InsertBet(ctx context.Context, bet wager.Bet) error {
	model := Bet{
		BetID:     bet.BetID,
		UserID:    bet.UserID,
		Game:      bet.Game,
		Stake:     bet.Stake,
		Status:    bet.Status.String(),
		Payout:    bet.Payout,
		Details:   datatypesJSON(bet.Details),
		CreatedAt: bet.CreatedAt,
		SettledAt: bet.SettledAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectBet, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetBet(ctx context.Context, betID string) (wager.Bet, error) {
	var model Bet
	err := store.db.WithContext(ctx).Where("bet_id = ?", betID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wager.Bet{}, wrapStoreError(errorSubjectBet, errorCodeGet, wager.ErrBetNotFound)
		}
		return wager.Bet{}, wrapStoreError(errorSubjectBet, errorCodeGet, err)
	}
	bet, err := mapBet(model)
	if err != nil {
		return wager.Bet{}, wrapStoreError(errorSubjectBet, errorCodeInvalid, err)
	}
	return bet, nil
}

// SettleBet performs the guarded pending-to-terminal transition. The status
// condition makes racing settlers lose with zero rows affected.
func (store *Store) SettleBet(ctx context.Context, betID string, from wager.BetStatus, to wager.BetStatus, payout int64, details string, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Bet{}).
		Where("bet_id = ? AND status = ?", betID, from.String()).
		Updates(map[string]interface{}{
			"status":     to.String(),
			"payout":     payout,
			"details":    datatypesJSON(details),
			"settled_at": at,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBet, errorCodeSettle, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBet, errorCodeSettle, wager.ErrBetSettled)
	}
	return nil
}

func (store *Store) ListBets(ctx context.Context, userID string, before wager.PageKey, limit int) ([]wager.Bet, error) {
	query := store.db.WithContext(ctx).Where("user_id = ?", userID)
	if !before.IsZero() {
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND bet_id < ?))",
			before.CreatedBefore, before.CreatedBefore, before.IDBefore,
		)
	}
	var rows []Bet
	err := query.
		Order("created_at DESC, bet_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBet, errorCodeList, err)
	}
	bets := make([]wager.Bet, 0, len(rows))
	for _, row := range rows {
		bet, err := mapBet(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBet, errorCodeInvalid, err)
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return wager.WrapError(errorOperationStore, subject, code, err)
}

func mapTransaction(row Transaction) (wager.Transaction, error) {
	transactionType, err := wager.ParseTransactionType(row.Type)
	if err != nil {
		return wager.Transaction{}, err
	}
	return wager.Transaction{
		TransactionID: row.TransactionID,
		UserID:        row.UserID,
		Type:          transactionType,
		Amount:        row.Amount,
		BalanceAfter:  row.BalanceAfter,
		Reference:     row.Reference,
		Note:          row.Note,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func mapBet(row Bet) (wager.Bet, error) {
	status, err := wager.ParseBetStatus(row.Status)
	if err != nil {
		return wager.Bet{}, err
	}
	details, err := wager.NewDetailsJSON(string(row.Details))
	if err != nil {
		return wager.Bet{}, err
	}
	return wager.Bet{
		BetID:     row.BetID,
		UserID:    row.UserID,
		Game:      row.Game,
		Stake:     row.Stake,
		Status:    status,
		Payout:    row.Payout,
		Details:   details.String(),
		CreatedAt: row.CreatedAt,
		SettledAt: row.SettledAt,
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultDetailsJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isWalletConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintWalletPrimary
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
