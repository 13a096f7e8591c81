// Package pgstore implements wager.Store directly on pgx for production
// postgres deployments. The gormstore is the portable implementation; this
// one keeps the SQL in view for audit.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mverkhovyn/wagerhouse/pkg/wager"
)

const (
	constraintWalletPrimary = "wallets_pkey"
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectWallet      = "wallet"
	errorSubjectTransaction = "transaction"
	errorSubjectBet         = "bet"
	errorSubjectUnitOfWork  = "unit_of_work"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeSettle         = "settle"
	errorCodeUpdate         = "update"

	sqlInsertWallet = `
		insert into wallets(user_id, balance, updated_at)
		values ($1, $2, $3)
	`

	sqlSelectWallet = `
		select user_id, balance, updated_at
		from wallets
		where user_id = $1
	`

	sqlSelectWalletForUpdate = sqlSelectWallet + `
		for update
	`

	sqlUpdateWalletBalance = `
		update wallets
		set balance = $2, updated_at = $3
		where user_id = $1
	`

	sqlInsertTransaction = `
		insert into transactions(
			transaction_id, user_id, type, amount, balance_after, reference, note, created_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	sqlListTransactions = `
		select transaction_id, user_id, type, amount, balance_after, reference, note, created_at
		from transactions
		where user_id = $1
		and (created_at < $2 or (created_at = $2 and transaction_id < $3))
		order by created_at desc, transaction_id desc
		limit $4
	`

	sqlInsertBet = `
		insert into bets(
			bet_id, user_id, game, stake, status, payout, details, created_at, settled_at
		)
		values ($1, $2, $3, $4, $5, $6, coalesce(nullif($7,''),'{}')::jsonb, $8, $9)
	`

	sqlSelectBet = `
		select bet_id, user_id, game, stake, status, payout, details::text, created_at, settled_at
		from bets
		where bet_id = $1
	`

	sqlSettleBet = `
		update bets
		set status = $3, payout = $4, details = coalesce(nullif($5,''),'{}')::jsonb, settled_at = $6
		where bet_id = $1 and status = $2
	`

	sqlListBets = `
		select bet_id, user_id, game, stake, status, payout, details::text, created_at, settled_at
		from bets
		where user_id = $1
		and (created_at < $2 or (created_at = $2 and bet_id < $3))
		order by created_at desc, bet_id desc
		limit $4
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements wager.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx executes fn within a transaction. Nested calls reuse the open
// transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wager.Store) error) error {
	if _, inTx := store.db.(pgx.Tx); inTx {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectUnitOfWork, errorCodeBegin, err)
	}
	transactionStore := &Store{pool: store.pool, db: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectUnitOfWork, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) CreateWallet(ctx context.Context, wallet wager.Wallet) error {
	_, err := store.db.Exec(ctx, sqlInsertWallet, wallet.UserID, wallet.Balance, wallet.UpdatedAt)
	if isWalletConflict(err) {
		return wrapStoreError(errorSubjectWallet, errorCodeDuplicate, wager.ErrWalletExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetWallet(ctx context.Context, userID string) (wager.Wallet, error) {
	return store.getWallet(ctx, userID, sqlSelectWallet)
}

func (store *Store) GetWalletForUpdate(ctx context.Context, userID string) (wager.Wallet, error) {
	return store.getWallet(ctx, userID, sqlSelectWalletForUpdate)
}

func (store *Store) getWallet(ctx context.Context, userID string, query string) (wager.Wallet, error) {
	var wallet wager.Wallet
	err := store.db.QueryRow(ctx, query, userID).Scan(&wallet.UserID, &wallet.Balance, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wager.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, wager.ErrWalletNotFound)
		}
		return wager.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	return wallet, nil
}

func (store *Store) UpdateWalletBalance(ctx context.Context, userID string, balance int64, at time.Time) error {
	tag, err := store.db.Exec(ctx, sqlUpdateWalletBalance, userID, balance, at)
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, wager.ErrWalletNotFound)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wager.Transaction) error {
	_, err := store.db.Exec(ctx, sqlInsertTransaction,
		transaction.TransactionID,
		transaction.UserID,
		transaction.Type.String(),
		transaction.Amount,
		transaction.BalanceAfter,
		transaction.Reference,
		transaction.Note,
		transaction.CreatedAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID string, before wager.PageKey, limit int) ([]wager.Transaction, error) {
	cutoff, idBefore := keysetBounds(before)
	rows, err := store.db.Query(ctx, sqlListTransactions, userID, cutoff, idBefore, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	transactions := make([]wager.Transaction, 0, limit)
	for rows.Next() {
		var transaction wager.Transaction
		var typeValue string
		if err := rows.Scan(
			&transaction.TransactionID,
			&transaction.UserID,
			&typeValue,
			&transaction.Amount,
			&transaction.BalanceAfter,
			&transaction.Reference,
			&transaction.Note,
			&transaction.CreatedAt,
		); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		transactionType, err := wager.ParseTransactionType(typeValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transaction.Type = transactionType
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return transactions, nil
}

func (store *Store) InsertBet(ctx context.Context, bet wager.Bet) error {
	_, err := store.db.Exec(ctx, sqlInsertBet,
		bet.BetID,
		bet.UserID,
		bet.Game,
		bet.Stake,
		bet.Status.String(),
		bet.Payout,
		bet.Details,
		bet.CreatedAt,
		bet.SettledAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectBet, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetBet(ctx context.Context, betID string) (wager.Bet, error) {
	bet, err := scanBet(store.db.QueryRow(ctx, sqlSelectBet, betID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wager.Bet{}, wrapStoreError(errorSubjectBet, errorCodeGet, wager.ErrBetNotFound)
		}
		return wager.Bet{}, err
	}
	return bet, nil
}

func (store *Store) SettleBet(ctx context.Context, betID string, from wager.BetStatus, to wager.BetStatus, payout int64, details string, at time.Time) error {
	tag, err := store.db.Exec(ctx, sqlSettleBet, betID, from.String(), to.String(), payout, details, at)
	if err != nil {
		return wrapStoreError(errorSubjectBet, errorCodeSettle, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectBet, errorCodeSettle, wager.ErrBetSettled)
	}
	return nil
}

func (store *Store) ListBets(ctx context.Context, userID string, before wager.PageKey, limit int) ([]wager.Bet, error) {
	cutoff, idBefore := keysetBounds(before)
	rows, err := store.db.Query(ctx, sqlListBets, userID, cutoff, idBefore, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectBet, errorCodeList, err)
	}
	defer rows.Close()
	bets := make([]wager.Bet, 0, limit)
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBet, errorCodeList, err)
	}
	return bets, nil
}

func scanBet(row pgx.Row) (wager.Bet, error) {
	var bet wager.Bet
	var statusValue string
	err := row.Scan(
		&bet.BetID,
		&bet.UserID,
		&bet.Game,
		&bet.Stake,
		&statusValue,
		&bet.Payout,
		&bet.Details,
		&bet.CreatedAt,
		&bet.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wager.Bet{}, err
		}
		return wager.Bet{}, wrapStoreError(errorSubjectBet, errorCodeGet, err)
	}
	status, err := wager.ParseBetStatus(statusValue)
	if err != nil {
		return wager.Bet{}, wrapStoreError(errorSubjectBet, errorCodeInvalid, err)
	}
	bet.Status = status
	return bet, nil
}

// keysetBounds mirrors wager.PageKey into SQL arguments. A zero key starts
// just ahead of now so the newest rows are included.
func keysetBounds(before wager.PageKey) (time.Time, string) {
	if before.IsZero() {
		return time.Now().UTC().Add(time.Second), "￿"
	}
	return before.CreatedBefore, before.IDBefore
}

func wrapStoreError(subject string, code string, err error) error {
	return wager.WrapError(errorOperationStore, subject, code, err)
}

func isWalletConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintWalletPrimary
	}
	return false
}
