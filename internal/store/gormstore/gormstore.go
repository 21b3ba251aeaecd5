package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

const (
	dialectPostgres          = "postgres"
	pgUniqueViolationCode    = "23505"
	pgSerializationFailure   = "40001"
	pgDeadlockDetected       = "40P01"
	pgLockNotAvailable       = "55P03"
	sqliteBusyCode           = 5
	sqliteLockedCode         = 6
	sqliteConstraintCode     = 19
	emptyAllocationsJSON     = "[]"
	errorOperationStore      = "store"
	errorSubjectAccount      = "account"
	errorSubjectLot          = "lot"
	errorSubjectFreeze       = "freeze"
	errorSubjectTransaction  = "transaction"
	errorCodeCreate          = "create"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLookup          = "lookup"
	errorCodeUpdate          = "update"
	errorCodeUpdateStatus    = "update_status"
	errorCodeUpdateGateway   = "update_gateway_ref"
	errorCodeMarshalBreakout = "marshal_allocations"
)

// Store implements wallet.Store using GORM. It works against PostgreSQL and
// the glebarez sqlite driver; row locking degrades to no-op on sqlite, where
// the single-writer file lock serializes transactions anyway.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the wallet tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&WalletAccount{}, &WalletLot{}, &WalletLotFreeze{}, &WalletTransaction{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID string) (wallet.Account, error) {
	var model WalletAccount
	err := store.db.WithContext(ctx).
		Where(WalletAccount{UserID: userID}).
		Attrs(WalletAccount{Status: wallet.AccountStatusActive.String()}).
		FirstOrCreate(&model).Error
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, translateConflict(err))
	}
	return mapAccount(model)
}

func (store *Store) GetAccountForUpdate(ctx context.Context, userID string) (wallet.Account, error) {
	var model WalletAccount
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("user_id = ?", userID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		create := WalletAccount{UserID: userID, Status: wallet.AccountStatusActive.String()}
		if createErr := store.db.WithContext(ctx).Create(&create).Error; createErr != nil {
			// A racing first-use create loses the insert; surface a
			// retryable conflict instead of the raw duplicate-key error.
			if isUniqueViolation(createErr) {
				return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, wallet.ErrConcurrencyConflict)
			}
			return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, translateConflict(createErr))
		}
		model = create
		err = nil
	}
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, translateConflict(err))
	}
	return mapAccount(model)
}

func (store *Store) UpdateAccount(ctx context.Context, account wallet.Account) error {
	result := store.db.WithContext(ctx).
		Model(&WalletAccount{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]interface{}{
			"available": account.Available,
			"frozen":    account.Frozen,
			"pending":   account.Pending,
			"status":    account.Status.String(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, translateConflict(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, wallet.ErrUnknownAccount)
	}
	return nil
}

func (store *Store) InsertLot(ctx context.Context, lot wallet.Lot) error {
	model := WalletLot{
		LotID:      lot.LotID,
		UserID:     lot.UserID,
		Source:     lot.Source.String(),
		Amount:     lot.Amount,
		Remaining:  lot.Remaining,
		Currency:   lot.Currency,
		AcquiredAt: time.Unix(lot.AcquiredAtUnixUTC, 0).UTC(),
		ExpiresAt:  timePointer(lot.ExpiresAtUnixUTC),
		Status:     lot.Status.String(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectLot, errorCodeDuplicate, wallet.ErrConcurrencyConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectLot, errorCodeCreate, translateConflict(err))
	}
	return nil
}

func (store *Store) GetLotForUpdate(ctx context.Context, lotID string) (wallet.Lot, error) {
	var model WalletLot
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("lot_id = ?", lotID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Lot{}, wrapStoreError(errorSubjectLot, errorCodeGet, wallet.ErrUnknownLot)
	}
	if err != nil {
		return wallet.Lot{}, wrapStoreError(errorSubjectLot, errorCodeGet, translateConflict(err))
	}
	return mapLot(model)
}

func (store *Store) ListSpendableLots(ctx context.Context, userID string, atUnixUTC int64) ([]wallet.Lot, error) {
	at := time.Unix(atUnixUTC, 0).UTC()
	query := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status = ?", wallet.LotStatusActive.String()).
		Where("remaining > 0").
		Where("(expires_at is null or expires_at > ?)", at).
		Order("acquired_at ASC, lot_id ASC")
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []WalletLot
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectLot, errorCodeList, translateConflict(err))
	}
	lots := make([]wallet.Lot, 0, len(rows))
	for _, row := range rows {
		lot, err := mapLot(row)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func (store *Store) UpdateLot(ctx context.Context, lot wallet.Lot) error {
	result := store.db.WithContext(ctx).
		Model(&WalletLot{}).
		Where("lot_id = ?", lot.LotID).
		Updates(map[string]interface{}{
			"remaining": lot.Remaining,
			"status":    lot.Status.String(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectLot, errorCodeUpdate, translateConflict(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectLot, errorCodeUpdate, wallet.ErrUnknownLot)
	}
	return nil
}

func (store *Store) InsertFreeze(ctx context.Context, freeze wallet.Freeze) error {
	model := WalletLotFreeze{
		FreezeID:      freeze.FreezeID,
		LotID:         freeze.LotID,
		UserID:        freeze.UserID,
		OrderRef:      freeze.OrderRef,
		TransactionID: freeze.TransactionID,
		Amount:        freeze.Amount,
		Status:        freeze.Status.String(),
		ExpiresAt:     time.Unix(freeze.ExpiresAtUnixUTC, 0).UTC(),
		ConsumedAt:    timePointer(freeze.ConsumedAtUnixUTC),
		ReleasedAt:    timePointer(freeze.ReleasedAtUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectFreeze, errorCodeDuplicate, wallet.ErrConcurrencyConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectFreeze, errorCodeCreate, translateConflict(err))
	}
	return nil
}

func (store *Store) ListFreezesByTransaction(ctx context.Context, transactionID string) ([]wallet.Freeze, error) {
	var rows []WalletLotFreeze
	err := store.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC, freeze_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectFreeze, errorCodeList, translateConflict(err))
	}
	return mapFreezes(rows)
}

func (store *Store) UpdateFreezeStatus(ctx context.Context, freezeID string, from, to wallet.FreezeStatus, atUnixUTC int64) (bool, error) {
	updates := map[string]interface{}{"status": to.String()}
	stamp := time.Unix(atUnixUTC, 0).UTC()
	switch to {
	case wallet.FreezeStatusConsumed:
		updates["consumed_at"] = stamp
	case wallet.FreezeStatusReleased:
		updates["released_at"] = stamp
	}
	result := store.db.WithContext(ctx).
		Model(&WalletLotFreeze{}).
		Where("freeze_id = ? AND status = ?", freezeID, from.String()).
		Updates(updates)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectFreeze, errorCodeUpdateStatus, translateConflict(result.Error))
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) ListExpiredFreezes(ctx context.Context, atUnixUTC int64, limit int) ([]wallet.Freeze, error) {
	at := time.Unix(atUnixUTC, 0).UTC()
	var rows []WalletLotFreeze
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", wallet.FreezeStatusFrozen.String(), at).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectFreeze, errorCodeList, translateConflict(err))
	}
	return mapFreezes(rows)
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wallet.Transaction) error {
	allocations, err := marshalAllocations(transaction.Allocations)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeMarshalBreakout, err)
	}
	model := WalletTransaction{
		TransactionID: transaction.TransactionID,
		UserID:        transaction.UserID,
		Direction:     transaction.Direction.String(),
		Amount:        transaction.Amount,
		Currency:      transaction.Currency,
		Type:          transaction.Type.String(),
		Status:        transaction.Status.String(),
		RefKind:       transaction.Ref.Kind.String(),
		RefID:         transaction.Ref.ID,
		GatewayRef:    transaction.GatewayRef,
		Allocations:   allocations,
		CreatedAt:     time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	createErr := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(createErr) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, wallet.ErrConcurrencyConflict)
	}
	if createErr != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCreate, translateConflict(createErr))
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, transactionID string) (wallet.Transaction, error) {
	var model WalletTransaction
	err := store.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, wallet.ErrUnknownTransaction)
	}
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, translateConflict(err))
	}
	return mapTransaction(model)
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to wallet.TxnStatus) error {
	result := store.db.WithContext(ctx).
		Model(&WalletTransaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, translateConflict(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, wallet.ErrInvalidState)
	}
	return nil
}

func (store *Store) UpdateTransactionGatewayRef(ctx context.Context, transactionID string, gatewayRef string) error {
	result := store.db.WithContext(ctx).
		Model(&WalletTransaction{}).
		Where("transaction_id = ?", transactionID).
		Update("gateway_ref", gatewayRef)
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateGateway, translateConflict(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateGateway, wallet.ErrUnknownTransaction)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID string, beforeUnixUTC int64, limit int) ([]wallet.Transaction, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}
	var rows []WalletTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID, before).
		Order("created_at DESC, transaction_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, translateConflict(err))
	}
	transactions := make([]wallet.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, mapErr := mapTransaction(row)
		if mapErr != nil {
			return nil, mapErr
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

func mapAccount(model WalletAccount) (wallet.Account, error) {
	status, err := wallet.ParseAccountStatus(model.Status)
	if err != nil {
		return wallet.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return wallet.Account{
		UserID:    model.UserID,
		Available: model.Available,
		Frozen:    model.Frozen,
		Pending:   model.Pending,
		Status:    status,
	}, nil
}

func mapLot(model WalletLot) (wallet.Lot, error) {
	source, err := wallet.ParseLotSource(model.Source)
	if err != nil {
		return wallet.Lot{}, wrapStoreError(errorSubjectLot, errorCodeInvalid, err)
	}
	status, err := wallet.ParseLotStatus(model.Status)
	if err != nil {
		return wallet.Lot{}, wrapStoreError(errorSubjectLot, errorCodeInvalid, err)
	}
	return wallet.Lot{
		LotID:             model.LotID,
		UserID:            model.UserID,
		Source:            source,
		Amount:            model.Amount,
		Remaining:         model.Remaining,
		Currency:          model.Currency,
		AcquiredAtUnixUTC: model.AcquiredAt.Unix(),
		ExpiresAtUnixUTC:  timeOrZero(model.ExpiresAt),
		Status:            status,
	}, nil
}

func mapFreezes(rows []WalletLotFreeze) ([]wallet.Freeze, error) {
	freezes := make([]wallet.Freeze, 0, len(rows))
	for _, row := range rows {
		status, err := wallet.ParseFreezeStatus(row.Status)
		if err != nil {
			return nil, wrapStoreError(errorSubjectFreeze, errorCodeInvalid, err)
		}
		freezes = append(freezes, wallet.Freeze{
			FreezeID:          row.FreezeID,
			LotID:             row.LotID,
			UserID:            row.UserID,
			OrderRef:          row.OrderRef,
			TransactionID:     row.TransactionID,
			Amount:            row.Amount,
			Status:            status,
			ExpiresAtUnixUTC:  row.ExpiresAt.Unix(),
			ConsumedAtUnixUTC: timeOrZero(row.ConsumedAt),
			ReleasedAtUnixUTC: timeOrZero(row.ReleasedAt),
			CreatedUnixUTC:    row.CreatedAt.Unix(),
		})
	}
	return freezes, nil
}

func mapTransaction(model WalletTransaction) (wallet.Transaction, error) {
	direction, err := wallet.ParseDirection(model.Direction)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	txnType, err := wallet.ParseTxnType(model.Type)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	status, err := wallet.ParseTxnStatus(model.Status)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	refKind, err := wallet.ParseRefKind(model.RefKind)
	if err != nil {
		return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	var allocations []wallet.LotAllocation
	if len(model.Allocations) > 0 {
		if err := json.Unmarshal(model.Allocations, &allocations); err != nil {
			return wallet.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
	}
	return wallet.Transaction{
		TransactionID:  model.TransactionID,
		UserID:         model.UserID,
		Direction:      direction,
		Amount:         model.Amount,
		Currency:       model.Currency,
		Type:           txnType,
		Status:         status,
		Ref:            wallet.Reference{Kind: refKind, ID: model.RefID},
		GatewayRef:     model.GatewayRef,
		Allocations:    allocations,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func marshalAllocations(allocations []wallet.LotAllocation) (datatypes.JSON, error) {
	if len(allocations) == 0 {
		return datatypes.JSON([]byte(emptyAllocationsJSON)), nil
	}
	encoded, err := json.Marshal(allocations)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func timePointer(unixUTC int64) *time.Time {
	if unixUTC == 0 {
		return nil
	}
	value := time.Unix(unixUTC, 0).UTC()
	return &value
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

// translateConflict maps lock timeouts, deadlocks, and serialization failures
// to the domain conflict error so callers can retry.
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
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xFF {
		case sqliteBusyCode, sqliteLockedCode:
			return wallet.ErrConcurrencyConflict
		}
	}
	return err
}
