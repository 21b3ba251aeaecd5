// Package memstore provides an in-memory wallet.Store for tests and demos.
// A process-wide mutex serializes transactions, which gives WithTx the same
// isolation a database transaction would.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

// Store keeps all wallet state in maps guarded by one mutex.
type Store struct {
	mutex        sync.Mutex
	inTx         bool
	accounts     map[string]wallet.Account
	lots         map[string]wallet.Lot
	freezes      map[string]wallet.Freeze
	transactions map[string]wallet.Transaction
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:     map[string]wallet.Account{},
		lots:         map[string]wallet.Lot{},
		freezes:      map[string]wallet.Freeze{},
		transactions: map[string]wallet.Transaction{},
	}
}

// WithTx serializes the callback under the store mutex and rolls back all
// changes when it returns an error.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.inTx {
		return fn(ctx, store)
	}
	store.inTx = true
	defer func() { store.inTx = false }()
	accounts := cloneMap(store.accounts)
	lots := cloneMap(store.lots)
	freezes := cloneMap(store.freezes)
	transactions := cloneMap(store.transactions)
	if err := fn(ctx, txView{store: store}); err != nil {
		store.accounts = accounts
		store.lots = lots
		store.freezes = freezes
		store.transactions = transactions
		return err
	}
	return nil
}

// txView exposes the store inside an open transaction without re-locking.
type txView struct {
	store *Store
}

func (view txView) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return fn(ctx, view)
}

func (view txView) GetOrCreateAccount(ctx context.Context, userID string) (wallet.Account, error) {
	return view.store.getOrCreateAccountLocked(userID), nil
}

func (view txView) GetAccountForUpdate(ctx context.Context, userID string) (wallet.Account, error) {
	return view.store.getOrCreateAccountLocked(userID), nil
}

func (view txView) UpdateAccount(ctx context.Context, account wallet.Account) error {
	return view.store.updateAccountLocked(account)
}

func (view txView) InsertLot(ctx context.Context, lot wallet.Lot) error {
	return view.store.insertLotLocked(lot)
}

func (view txView) GetLotForUpdate(ctx context.Context, lotID string) (wallet.Lot, error) {
	return view.store.getLotLocked(lotID)
}

func (view txView) ListSpendableLots(ctx context.Context, userID string, atUnixUTC int64) ([]wallet.Lot, error) {
	return view.store.listSpendableLotsLocked(userID, atUnixUTC), nil
}

func (view txView) UpdateLot(ctx context.Context, lot wallet.Lot) error {
	return view.store.updateLotLocked(lot)
}

func (view txView) InsertFreeze(ctx context.Context, freeze wallet.Freeze) error {
	return view.store.insertFreezeLocked(freeze)
}

func (view txView) ListFreezesByTransaction(ctx context.Context, transactionID string) ([]wallet.Freeze, error) {
	return view.store.listFreezesByTransactionLocked(transactionID), nil
}

func (view txView) UpdateFreezeStatus(ctx context.Context, freezeID string, from, to wallet.FreezeStatus, atUnixUTC int64) (bool, error) {
	return view.store.updateFreezeStatusLocked(freezeID, from, to, atUnixUTC), nil
}

func (view txView) ListExpiredFreezes(ctx context.Context, atUnixUTC int64, limit int) ([]wallet.Freeze, error) {
	return view.store.listExpiredFreezesLocked(atUnixUTC, limit), nil
}

func (view txView) InsertTransaction(ctx context.Context, transaction wallet.Transaction) error {
	return view.store.insertTransactionLocked(transaction)
}

func (view txView) GetTransaction(ctx context.Context, transactionID string) (wallet.Transaction, error) {
	return view.store.getTransactionLocked(transactionID)
}

func (view txView) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to wallet.TxnStatus) error {
	return view.store.updateTransactionStatusLocked(transactionID, from, to)
}

func (view txView) UpdateTransactionGatewayRef(ctx context.Context, transactionID string, gatewayRef string) error {
	return view.store.updateTransactionGatewayRefLocked(transactionID, gatewayRef)
}

func (view txView) ListTransactions(ctx context.Context, userID string, beforeUnixUTC int64, limit int) ([]wallet.Transaction, error) {
	return view.store.listTransactionsLocked(userID, beforeUnixUTC, limit), nil
}

func (store *Store) GetOrCreateAccount(ctx context.Context, userID string) (wallet.Account, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.getOrCreateAccountLocked(userID), nil
}

func (store *Store) GetAccountForUpdate(ctx context.Context, userID string) (wallet.Account, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.getOrCreateAccountLocked(userID), nil
}

func (store *Store) UpdateAccount(ctx context.Context, account wallet.Account) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.updateAccountLocked(account)
}

func (store *Store) InsertLot(ctx context.Context, lot wallet.Lot) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.insertLotLocked(lot)
}

func (store *Store) GetLotForUpdate(ctx context.Context, lotID string) (wallet.Lot, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.getLotLocked(lotID)
}

func (store *Store) ListSpendableLots(ctx context.Context, userID string, atUnixUTC int64) ([]wallet.Lot, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.listSpendableLotsLocked(userID, atUnixUTC), nil
}

func (store *Store) UpdateLot(ctx context.Context, lot wallet.Lot) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.updateLotLocked(lot)
}

func (store *Store) InsertFreeze(ctx context.Context, freeze wallet.Freeze) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.insertFreezeLocked(freeze)
}

func (store *Store) ListFreezesByTransaction(ctx context.Context, transactionID string) ([]wallet.Freeze, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.listFreezesByTransactionLocked(transactionID), nil
}

func (store *Store) UpdateFreezeStatus(ctx context.Context, freezeID string, from, to wallet.FreezeStatus, atUnixUTC int64) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.updateFreezeStatusLocked(freezeID, from, to, atUnixUTC), nil
}

func (store *Store) ListExpiredFreezes(ctx context.Context, atUnixUTC int64, limit int) ([]wallet.Freeze, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.listExpiredFreezesLocked(atUnixUTC, limit), nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction wallet.Transaction) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.insertTransactionLocked(transaction)
}

func (store *Store) GetTransaction(ctx context.Context, transactionID string) (wallet.Transaction, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.getTransactionLocked(transactionID)
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to wallet.TxnStatus) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.updateTransactionStatusLocked(transactionID, from, to)
}

func (store *Store) UpdateTransactionGatewayRef(ctx context.Context, transactionID string, gatewayRef string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.updateTransactionGatewayRefLocked(transactionID, gatewayRef)
}

func (store *Store) ListTransactions(ctx context.Context, userID string, beforeUnixUTC int64, limit int) ([]wallet.Transaction, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.listTransactionsLocked(userID, beforeUnixUTC, limit), nil
}

func (store *Store) getOrCreateAccountLocked(userID string) wallet.Account {
	if account, found := store.accounts[userID]; found {
		return account
	}
	account := wallet.Account{
		UserID:    userID,
		Available: decimal.Zero,
		Frozen:    decimal.Zero,
		Pending:   decimal.Zero,
		Status:    wallet.AccountStatusActive,
	}
	store.accounts[userID] = account
	return account
}

func (store *Store) updateAccountLocked(account wallet.Account) error {
	if _, found := store.accounts[account.UserID]; !found {
		return wallet.ErrUnknownAccount
	}
	store.accounts[account.UserID] = account
	return nil
}

func (store *Store) insertLotLocked(lot wallet.Lot) error {
	if _, found := store.lots[lot.LotID]; found {
		return wallet.ErrConcurrencyConflict
	}
	store.lots[lot.LotID] = lot
	return nil
}

func (store *Store) getLotLocked(lotID string) (wallet.Lot, error) {
	lot, found := store.lots[lotID]
	if !found {
		return wallet.Lot{}, wallet.ErrUnknownLot
	}
	return lot, nil
}

func (store *Store) listSpendableLotsLocked(userID string, atUnixUTC int64) []wallet.Lot {
	lots := make([]wallet.Lot, 0, len(store.lots))
	for _, lot := range store.lots {
		if lot.UserID != userID || lot.Status != wallet.LotStatusActive {
			continue
		}
		if lot.Remaining.Sign() <= 0 {
			continue
		}
		if lot.ExpiresAtUnixUTC != 0 && lot.ExpiresAtUnixUTC <= atUnixUTC {
			continue
		}
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(left, right int) bool {
		if lots[left].AcquiredAtUnixUTC != lots[right].AcquiredAtUnixUTC {
			return lots[left].AcquiredAtUnixUTC < lots[right].AcquiredAtUnixUTC
		}
		return lots[left].LotID < lots[right].LotID
	})
	return lots
}

func (store *Store) updateLotLocked(lot wallet.Lot) error {
	if _, found := store.lots[lot.LotID]; !found {
		return wallet.ErrUnknownLot
	}
	store.lots[lot.LotID] = lot
	return nil
}

func (store *Store) insertFreezeLocked(freeze wallet.Freeze) error {
	if _, found := store.freezes[freeze.FreezeID]; found {
		return wallet.ErrConcurrencyConflict
	}
	store.freezes[freeze.FreezeID] = freeze
	return nil
}

func (store *Store) listFreezesByTransactionLocked(transactionID string) []wallet.Freeze {
	freezes := make([]wallet.Freeze, 0, 4)
	for _, freeze := range store.freezes {
		if freeze.TransactionID == transactionID {
			freezes = append(freezes, freeze)
		}
	}
	sort.Slice(freezes, func(left, right int) bool {
		return freezes[left].FreezeID < freezes[right].FreezeID
	})
	return freezes
}

func (store *Store) updateFreezeStatusLocked(freezeID string, from, to wallet.FreezeStatus, atUnixUTC int64) bool {
	freeze, found := store.freezes[freezeID]
	if !found || freeze.Status != from {
		return false
	}
	freeze.Status = to
	switch to {
	case wallet.FreezeStatusConsumed:
		freeze.ConsumedAtUnixUTC = atUnixUTC
	case wallet.FreezeStatusReleased:
		freeze.ReleasedAtUnixUTC = atUnixUTC
	}
	store.freezes[freezeID] = freeze
	return true
}

func (store *Store) listExpiredFreezesLocked(atUnixUTC int64, limit int) []wallet.Freeze {
	freezes := make([]wallet.Freeze, 0, 4)
	for _, freeze := range store.freezes {
		if freeze.Status == wallet.FreezeStatusFrozen && freeze.ExpiresAtUnixUTC <= atUnixUTC {
			freezes = append(freezes, freeze)
		}
	}
	sort.Slice(freezes, func(left, right int) bool {
		return freezes[left].ExpiresAtUnixUTC < freezes[right].ExpiresAtUnixUTC
	})
	if limit > 0 && len(freezes) > limit {
		freezes = freezes[:limit]
	}
	return freezes
}

func (store *Store) insertTransactionLocked(transaction wallet.Transaction) error {
	if _, found := store.transactions[transaction.TransactionID]; found {
		return wallet.ErrConcurrencyConflict
	}
	store.transactions[transaction.TransactionID] = transaction
	return nil
}

func (store *Store) getTransactionLocked(transactionID string) (wallet.Transaction, error) {
	transaction, found := store.transactions[transactionID]
	if !found {
		return wallet.Transaction{}, wallet.ErrUnknownTransaction
	}
	return transaction, nil
}

func (store *Store) updateTransactionStatusLocked(transactionID string, from, to wallet.TxnStatus) error {
	transaction, found := store.transactions[transactionID]
	if !found {
		return wallet.ErrUnknownTransaction
	}
	if transaction.Status != from {
		return wallet.ErrInvalidState
	}
	transaction.Status = to
	store.transactions[transactionID] = transaction
	return nil
}

func (store *Store) updateTransactionGatewayRefLocked(transactionID string, gatewayRef string) error {
	transaction, found := store.transactions[transactionID]
	if !found {
		return wallet.ErrUnknownTransaction
	}
	transaction.GatewayRef = gatewayRef
	store.transactions[transactionID] = transaction
	return nil
}

func (store *Store) listTransactionsLocked(userID string, beforeUnixUTC int64, limit int) []wallet.Transaction {
	transactions := make([]wallet.Transaction, 0, len(store.transactions))
	for _, transaction := range store.transactions {
		if transaction.UserID == userID && transaction.CreatedUnixUTC < beforeUnixUTC {
			transactions = append(transactions, transaction)
		}
	}
	sort.Slice(transactions, func(left, right int) bool {
		if transactions[left].CreatedUnixUTC != transactions[right].CreatedUnixUTC {
			return transactions[left].CreatedUnixUTC > transactions[right].CreatedUnixUTC
		}
		return transactions[left].TransactionID < transactions[right].TransactionID
	})
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions
}

func cloneMap[Value any](source map[string]Value) map[string]Value {
	clone := make(map[string]Value, len(source))
	for key, value := range source {
		clone[key] = value
	}
	return clone
}
