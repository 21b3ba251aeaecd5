package pgstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

const (
	pgUniqueViolationCode  = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	errorOperationStore    = "store"
	errorSubjectAccount    = "account"
	errorSubjectLot        = "lot"
	errorSubjectFreeze     = "freeze"
	errorSubjectTxn        = "transaction"
	errorCodeBegin         = "begin"
	errorCodeCommit        = "commit"
	errorCodeCreate        = "create"
	errorCodeDuplicate     = "duplicate"
	errorCodeGet           = "get"
	errorCodeInvalid       = "invalid"
	errorCodeList          = "list"
	errorCodeLookup        = "lookup"
	errorCodeUpdate        = "update"
	errorCodeUpdateStatus  = "update_status"
	errorCodeUpdateGateway = "update_gateway_ref"

	sqlInsertOrGetAccount = `
		insert into wallet_accounts(user_id, available, frozen, pending, status)
		values($1, 0, 0, 0, 'active')
		on conflict (user_id) do update set user_id = excluded.user_id
		returning available::text, frozen::text, pending::text, status
	`

	sqlSelectAccountForUpdate = `
		select available::text, frozen::text, pending::text, status
		from wallet_accounts
		where user_id = $1
		for update
	`

	sqlUpdateAccount = `
		update wallet_accounts
		set available = $2::numeric, frozen = $3::numeric, pending = $4::numeric, status = $5, updated_at = now()
		where user_id = $1
	`

	sqlInsertLot = `
		insert into wallet_lots(
			lot_id, user_id, source, amount, remaining, currency, acquired_at, expires_at, status
		)
		values(
			$1, $2, $3, $4::numeric, $5::numeric, $6,
			to_timestamp($7),
			to_timestamp(nullif($8, 0)),
			$9
		)
	`

	sqlSelectLotColumns = `
		select
			lot_id::text,
			user_id,
			source,
			amount::text,
			remaining::text,
			currency,
			extract(epoch from acquired_at)::bigint,
			coalesce(extract(epoch from expires_at)::bigint, 0),
			status
		from wallet_lots
	`

	sqlSelectLotForUpdate = sqlSelectLotColumns + `
		where lot_id = $1
		for update
	`

	sqlListSpendableLots = sqlSelectLotColumns + `
		where user_id = $1
		and status = 'active'
		and remaining > 0
		and (expires_at is null or expires_at > to_timestamp($2))
		order by acquired_at asc, lot_id asc
		for update
	`

	sqlUpdateLot = `
		update wallet_lots
		set remaining = $2::numeric, status = $3, updated_at = now()
		where lot_id = $1
	`

	sqlInsertFreeze = `
		insert into wallet_lot_freezes(
			freeze_id, lot_id, user_id, order_ref, transaction_id, amount, status, expires_at, created_at
		)
		values(
			$1, $2, $3, $4, $5, $6::numeric, $7,
			to_timestamp($8),
			to_timestamp($9)
		)
	`

	sqlSelectFreezeColumns = `
		select
			freeze_id::text,
			lot_id::text,
			user_id,
			order_ref,
			transaction_id::text,
			amount::text,
			status,
			extract(epoch from expires_at)::bigint,
			coalesce(extract(epoch from consumed_at)::bigint, 0),
			coalesce(extract(epoch from released_at)::bigint, 0),
			extract(epoch from created_at)::bigint
		from wallet_lot_freezes
	`

	sqlListFreezesByTransaction = sqlSelectFreezeColumns + `
		where transaction_id = $1
		order by created_at asc, freeze_id asc
	`

	sqlListExpiredFreezes = sqlSelectFreezeColumns + `
		where status = 'frozen' and expires_at <= to_timestamp($1)
		order by expires_at asc
		limit $2
	`

	sqlUpdateFreezeStatus = `
		update wallet_lot_freezes
		set status = $3,
			consumed_at = case when $3 = 'consumed' then to_timestamp($4) else consumed_at end,
			released_at = case when $3 = 'released' then to_timestamp($4) else released_at end,
			updated_at = now()
		where freeze_id = $1 and status = $2
	`

	sqlInsertTransaction = `
		insert into wallet_transactions(
			transaction_id, user_id, direction, amount, currency, type, status,
			ref_kind, ref_id, gateway_ref, allocations, created_at
		)
		values(
			$1, $2, $3, $4::numeric, $5, $6, $7,
			$8, $9, $10,
			coalesce(nullif($11, ''), '[]')::jsonb,
			to_timestamp($12)
		)
	`

	sqlSelectTransactionColumns = `
		select
			transaction_id::text,
			user_id,
			direction,
			amount::text,
			currency,
			type,
			status,
			ref_kind,
			ref_id,
			gateway_ref,
			coalesce(allocations::text, '[]'),
			extract(epoch from created_at)::bigint
		from wallet_transactions
	`

	sqlSelectTransaction = sqlSelectTransactionColumns + `
		where transaction_id = $1
	`

	sqlUpdateTransactionStatus = `
		update wallet_transactions
		set status = $3, updated_at = now()
		where transaction_id = $1 and status = $2
	`

	sqlUpdateTransactionGatewayRef = `
		update wallet_transactions
		set gateway_ref = $2, updated_at = now()
		where transaction_id = $1
	`

	sqlListTransactionsBefore = sqlSelectTransactionColumns + `
		where user_id = $1 and created_at < to_timestamp($2)
		order by created_at desc, transaction_id asc
		limit $3
	`
)

// querier is the query surface shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements wallet.Store using a pgx connection pool (autocommit
// outside WithTx).
type Store struct {
	pool *pgxpool.Pool
	queries
}

// TxStore implements wallet.Store for an active transaction. Nested WithTx
// calls reuse the transaction.
type TxStore struct {
	queries
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: queries{q: pool}}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTxn, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{q: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTxn, errorCodeCommit, translateConflict(err))
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return fn(ctx, store)
}

// queries holds the wallet.Store implementation shared between pool-backed
// and transaction-backed stores.
type queries struct {
	q querier
}

func (store queries) GetOrCreateAccount(ctx context.Context, userID string) (wallet.Account, error) {
	var (
		availableValue string
		frozenValue    string
		pendingValue   string
		statusValue    string
	)
	err := store.q.QueryRow(ctx, sqlInsertOrGetAccount, userID).Scan(&availableValue, &frozenValue, &pendingValue, &statusValue)
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, translateConflict(err))
	}
	return buildAccount(userID, availableValue, frozenValue, pendingValue, statusValue)
}

func (store queries) GetAccountForUpdate(ctx context.Context, userID string) (wallet.Account, error) {
	var (
		availableValue string
		frozenValue    string
		pendingValue   string
		statusValue    string
	)
	err := store.q.QueryRow(ctx, sqlSelectAccountForUpdate, userID).Scan(&availableValue, &frozenValue, &pendingValue, &statusValue)
	if errors.Is(err, pgx.ErrNoRows) {
		err = store.q.QueryRow(ctx, sqlInsertOrGetAccount, userID).Scan(&availableValue, &frozenValue, &pendingValue, &statusValue)
	}
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, translateConflict(err))
	}
	return buildAccount(userID, availableValue, frozenValue, pendingValue, statusValue)
}

func (store queries) UpdateAccount(ctx context.Context, account wallet.Account) error {
	tag, err := store.q.Exec(ctx, sqlUpdateAccount,
		account.UserID,
		account.Available.String(),
		account.Frozen.String(),
		account.Pending.String(),
		account.Status.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, translateConflict(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, wallet.ErrUnknownAccount)
	}
	return nil
}

func (store queries) InsertLot(ctx context.Context, lot wallet.Lot) error {
	_, err := store.q.Exec(ctx, sqlInsertLot,
		lot.LotID,
		lot.UserID,
		lot.Source.String(),
		lot.Amount.String(),
		lot.Remaining.String(),
		lot.Currency,
		lot.AcquiredAtUnixUTC,
		lot.ExpiresAtUnixUTC,
		lot.Status.String(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectLot, errorCodeDuplicate, wallet.ErrConcurrencyConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectLot, errorCodeCreate, translateConflict(err))
	}
	return nil
}

func (store queries) GetLotForUpdate(ctx context.Context, lotID string) (wallet.Lot, error) {
	lot, err := scanLot(store.q.QueryRow(ctx, sqlSelectLotForUpdate, lotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Lot{}, wrapStoreError(errorSubjectLot, errorCodeGet, wallet.ErrUnknownLot)
	}
	if err != nil {
		return wallet.Lot{}, wrapStoreError(errorSubjectLot, errorCodeGet, translateConflict(err))
	}
	return lot, nil
}

func (store queries) ListSpendableLots(ctx context.Context, userID string, atUnixUTC int64) ([]wallet.Lot, error) {
	rows, err := store.q.Query(ctx, sqlListSpendableLots, userID, atUnixUTC)
	if err != nil {
		return nil, wrapStoreError(errorSubjectLot, errorCodeList, translateConflict(err))
	}
	defer rows.Close()
	lots := make([]wallet.Lot, 0, 8)
	for rows.Next() {
		lot, scanErr := scanLot(rows)
		if scanErr != nil {
			return nil, wrapStoreError(errorSubjectLot, errorCodeInvalid, scanErr)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectLot, errorCodeList, translateConflict(err))
	}
	return lots, nil
}

func (store queries) UpdateLot(ctx context.Context, lot wallet.Lot) error {
	tag, err := store.q.Exec(ctx, sqlUpdateLot, lot.LotID, lot.Remaining.String(), lot.Status.String())
	if err != nil {
		return wrapStoreError(errorSubjectLot, errorCodeUpdate, translateConflict(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectLot, errorCodeUpdate, wallet.ErrUnknownLot)
	}
	return nil
}

func (store queries) InsertFreeze(ctx context.Context, freeze wallet.Freeze) error {
	_, err := store.q.Exec(ctx, sqlInsertFreeze,
		freeze.FreezeID,
		freeze.LotID,
		freeze.UserID,
		freeze.OrderRef,
		freeze.TransactionID,
		freeze.Amount.String(),
		freeze.Status.String(),
		freeze.ExpiresAtUnixUTC,
		freeze.CreatedUnixUTC,
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectFreeze, errorCodeDuplicate, wallet.ErrConcurrencyConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectFreeze, errorCodeCreate, translateConflict(err))
	}
	return nil
}

func (store queries) ListFreezesByTransaction(ctx context.Context, transactionID string) ([]wallet.Freeze, error) {
	rows, err := store.q.Query(ctx, sqlListFreezesByTransaction, transactionID)
	if err != nil {
		return nil, wrapStoreError(errorSubjectFreeze, errorCodeList, translateConflict(err))
	}
	defer rows.Close()
	return scanFreezes(rows)
}

func (store queries) UpdateFreezeStatus(ctx context.Context, freezeID string, from, to wallet.FreezeStatus, atUnixUTC int64) (bool, error) {
	tag, err := store.q.Exec(ctx, sqlUpdateFreezeStatus, freezeID, from.String(), to.String(), atUnixUTC)
	if err != nil {
		return false, wrapStoreError(errorSubjectFreeze, errorCodeUpdateStatus, translateConflict(err))
	}
	return tag.RowsAffected() > 0, nil
}

func (store queries) ListExpiredFreezes(ctx context.Context, atUnixUTC int64, limit int) ([]wallet.Freeze, error) {
	rows, err := store.q.Query(ctx, sqlListExpiredFreezes, atUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectFreeze, errorCodeList, translateConflict(err))
	}
	defer rows.Close()
	return scanFreezes(rows)
}

func (store queries) InsertTransaction(ctx context.Context, transaction wallet.Transaction) error {
	allocations := ""
	if len(transaction.Allocations) > 0 {
		encoded, err := json.Marshal(transaction.Allocations)
		if err != nil {
			return wrapStoreError(errorSubjectTxn, errorCodeInvalid, err)
		}
		allocations = string(encoded)
	}
	_, err := store.q.Exec(ctx, sqlInsertTransaction,
		transaction.TransactionID,
		transaction.UserID,
		transaction.Direction.String(),
		transaction.Amount.String(),
		transaction.Currency,
		transaction.Type.String(),
		transaction.Status.String(),
		transaction.Ref.Kind.String(),
		transaction.Ref.ID,
		transaction.GatewayRef,
		allocations,
		transaction.CreatedUnixUTC,
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTxn, errorCodeDuplicate, wallet.ErrConcurrencyConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTxn, errorCodeCreate, translateConflict(err))
	}
	return nil
}

func (store queries) GetTransaction(ctx context.Context, transactionID string) (wallet.Transaction, error) {
	transaction, err := scanTransaction(store.q.QueryRow(ctx, sqlSelectTransaction, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeGet, wallet.ErrUnknownTransaction)
	}
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTxn, errorCodeGet, translateConflict(err))
	}
	return transaction, nil
}

func (store queries) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to wallet.TxnStatus) error {
	tag, err := store.q.Exec(ctx, sqlUpdateTransactionStatus, transactionID, from.String(), to.String())
	if err != nil {
		return wrapStoreError(errorSubjectTxn, errorCodeUpdateStatus, translateConflict(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectTxn, errorCodeUpdateStatus, wallet.ErrInvalidState)
	}
	return nil
}

func (store queries) UpdateTransactionGatewayRef(ctx context.Context, transactionID string, gatewayRef string) error {
	tag, err := store.q.Exec(ctx, sqlUpdateTransactionGatewayRef, transactionID, gatewayRef)
	if err != nil {
		return wrapStoreError(errorSubjectTxn, errorCodeUpdateGateway, translateConflict(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectTxn, errorCodeUpdateGateway, wallet.ErrUnknownTransaction)
	}
	return nil
}

func (store queries) ListTransactions(ctx context.Context, userID string, beforeUnixUTC int64, limit int) ([]wallet.Transaction, error) {
	if beforeUnixUTC == 0 {
		beforeUnixUTC = maxTimestampUnixUTC
	}
	rows, err := store.q.Query(ctx, sqlListTransactionsBefore, userID, beforeUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTxn, errorCodeList, translateConflict(err))
	}
	defer rows.Close()
	transactions := make([]wallet.Transaction, 0, 32)
	for rows.Next() {
		transaction, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, wrapStoreError(errorSubjectTxn, errorCodeInvalid, scanErr)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTxn, errorCodeList, translateConflict(err))
	}
	return transactions, nil
}

// maxTimestampUnixUTC stands in for "no cutoff" in list queries.
const maxTimestampUnixUTC = int64(1) << 40

func buildAccount(userID, availableValue, frozenValue, pendingValue, statusValue string) (wallet.Account, error) {
	available, err := decimal.NewFromString(availableValue)
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	frozen, err := decimal.NewFromString(frozenValue)
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	pending, err := decimal.NewFromString(pendingValue)
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	status, err := wallet.ParseAccountStatus(statusValue)
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return wallet.Account{
		UserID:    userID,
		Available: available,
		Frozen:    frozen,
		Pending:   pending,
		Status:    status,
	}, nil
}

func scanLot(row pgx.Row) (wallet.Lot, error) {
	var (
		lotIDValue        string
		userIDValue       string
		sourceValue       string
		amountValue       string
		remainingValue    string
		currencyValue     string
		acquiredAtUnixUTC int64
		expiresAtUnixUTC  int64
		statusValue       string
	)
	if err := row.Scan(
		&lotIDValue,
		&userIDValue,
		&sourceValue,
		&amountValue,
		&remainingValue,
		&currencyValue,
		&acquiredAtUnixUTC,
		&expiresAtUnixUTC,
		&statusValue,
	); err != nil {
		return wallet.Lot{}, err
	}
	source, err := wallet.ParseLotSource(sourceValue)
	if err != nil {
		return wallet.Lot{}, err
	}
	status, err := wallet.ParseLotStatus(statusValue)
	if err != nil {
		return wallet.Lot{}, err
	}
	amount, err := decimal.NewFromString(amountValue)
	if err != nil {
		return wallet.Lot{}, err
	}
	remaining, err := decimal.NewFromString(remainingValue)
	if err != nil {
		return wallet.Lot{}, err
	}
	return wallet.Lot{
		LotID:             lotIDValue,
		UserID:            userIDValue,
		Source:            source,
		Amount:            amount,
		Remaining:         remaining,
		Currency:          currencyValue,
		AcquiredAtUnixUTC: acquiredAtUnixUTC,
		ExpiresAtUnixUTC:  expiresAtUnixUTC,
		Status:            status,
	}, nil
}

func scanFreezes(rows pgx.Rows) ([]wallet.Freeze, error) {
	freezes := make([]wallet.Freeze, 0, 4)
	for rows.Next() {
		var (
			freezeIDValue      string
			lotIDValue         string
			userIDValue        string
			orderRefValue      string
			transactionIDValue string
			amountValue        string
			statusValue        string
			expiresAtUnixUTC   int64
			consumedAtUnixUTC  int64
			releasedAtUnixUTC  int64
			createdUnixUTC     int64
		)
		if err := rows.Scan(
			&freezeIDValue,
			&lotIDValue,
			&userIDValue,
			&orderRefValue,
			&transactionIDValue,
			&amountValue,
			&statusValue,
			&expiresAtUnixUTC,
			&consumedAtUnixUTC,
			&releasedAtUnixUTC,
			&createdUnixUTC,
		); err != nil {
			return nil, wrapStoreError(errorSubjectFreeze, errorCodeInvalid, err)
		}
		status, err := wallet.ParseFreezeStatus(statusValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectFreeze, errorCodeInvalid, err)
		}
		amount, err := decimal.NewFromString(amountValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectFreeze, errorCodeInvalid, err)
		}
		freezes = append(freezes, wallet.Freeze{
			FreezeID:          freezeIDValue,
			LotID:             lotIDValue,
			UserID:            userIDValue,
			OrderRef:          orderRefValue,
			TransactionID:     transactionIDValue,
			Amount:            amount,
			Status:            status,
			ExpiresAtUnixUTC:  expiresAtUnixUTC,
			ConsumedAtUnixUTC: consumedAtUnixUTC,
			ReleasedAtUnixUTC: releasedAtUnixUTC,
			CreatedUnixUTC:    createdUnixUTC,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectFreeze, errorCodeList, translateConflict(err))
	}
	return freezes, nil
}

func scanTransaction(row pgx.Row) (wallet.Transaction, error) {
	var (
		transactionIDValue string
		userIDValue        string
		directionValue     string
		amountValue        string
		currencyValue      string
		typeValue          string
		statusValue        string
		refKindValue       string
		refIDValue         string
		gatewayRefValue    string
		allocationsValue   string
		createdUnixUTC     int64
	)
	if err := row.Scan(
		&transactionIDValue,
		&userIDValue,
		&directionValue,
		&amountValue,
		&currencyValue,
		&typeValue,
		&statusValue,
		&refKindValue,
		&refIDValue,
		&gatewayRefValue,
		&allocationsValue,
		&createdUnixUTC,
	); err != nil {
		return wallet.Transaction{}, err
	}
	direction, err := wallet.ParseDirection(directionValue)
	if err != nil {
		return wallet.Transaction{}, err
	}
	txnType, err := wallet.ParseTxnType(typeValue)
	if err != nil {
		return wallet.Transaction{}, err
	}
	status, err := wallet.ParseTxnStatus(statusValue)
	if err != nil {
		return wallet.Transaction{}, err
	}
	refKind, err := wallet.ParseRefKind(refKindValue)
	if err != nil {
		return wallet.Transaction{}, err
	}
	amount, err := decimal.NewFromString(amountValue)
	if err != nil {
		return wallet.Transaction{}, err
	}
	var allocations []wallet.LotAllocation
	if allocationsValue != "" && allocationsValue != "[]" {
		if err := json.Unmarshal([]byte(allocationsValue), &allocations); err != nil {
			return wallet.Transaction{}, err
		}
	}
	return wallet.Transaction{
		TransactionID:  transactionIDValue,
		UserID:         userIDValue,
		Direction:      direction,
		Amount:         amount,
		Currency:       currencyValue,
		Type:           txnType,
		Status:         status,
		Ref:            wallet.Reference{Kind: refKind, ID: refIDValue},
		GatewayRef:     gatewayRefValue,
		Allocations:    allocations,
		CreatedUnixUTC: createdUnixUTC,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}

func translateConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return wallet.ErrConcurrencyConflict
		}
	}
	return err
}
