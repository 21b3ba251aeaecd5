package wallet

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
)

// stubStore is an in-memory Store with rollback-on-error transaction
// semantics and per-method error injection.
type stubStore struct {
	accounts     map[string]Account
	lots         map[string]Lot
	freezes      map[string]Freeze
	transactions map[string]Transaction

	lotSequence int

	getAccountError        error
	updateAccountError     error
	insertLotError         error
	getLotError            error
	listLotsError          error
	updateLotError         error
	insertFreezeError      error
	listFreezesError       error
	updateFreezeError      error
	listExpiredError       error
	insertTransactionError error
	getTransactionError    error
	updateTransactionError error
	listTransactionsError  error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:     make(map[string]Account),
		lots:         make(map[string]Lot),
		freezes:      make(map[string]Freeze),
		transactions: make(map[string]Transaction),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		return err
	}
	return nil
}

type stubSnapshot struct {
	accounts     map[string]Account
	lots         map[string]Lot
	freezes      map[string]Freeze
	transactions map[string]Transaction
}

func (store *stubStore) snapshot() stubSnapshot {
	return stubSnapshot{
		accounts:     cloneMap(store.accounts),
		lots:         cloneMap(store.lots),
		freezes:      cloneMap(store.freezes),
		transactions: cloneMap(store.transactions),
	}
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.accounts = snapshot.accounts
	store.lots = snapshot.lots
	store.freezes = snapshot.freezes
	store.transactions = snapshot.transactions
}

func cloneMap[Value any](source map[string]Value) map[string]Value {
	cloned := make(map[string]Value, len(source))
	for key, value := range source {
		cloned[key] = value
	}
	return cloned
}

func (store *stubStore) GetOrCreateAccount(ctx context.Context, userID string) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	account, exists := store.accounts[userID]
	if !exists {
		account = Account{
			UserID:    userID,
			Available: decimal.Zero,
			Frozen:    decimal.Zero,
			Pending:   decimal.Zero,
			Status:    AccountStatusActive,
		}
		store.accounts[userID] = account
	}
	return account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, userID string) (Account, error) {
	return store.GetOrCreateAccount(ctx, userID)
}

func (store *stubStore) UpdateAccount(ctx context.Context, account Account) error {
	if store.updateAccountError != nil {
		return store.updateAccountError
	}
	store.accounts[account.UserID] = account
	return nil
}

func (store *stubStore) InsertLot(ctx context.Context, lot Lot) error {
	if store.insertLotError != nil {
		return store.insertLotError
	}
	store.lots[lot.LotID] = lot
	return nil
}

func (store *stubStore) GetLotForUpdate(ctx context.Context, lotID string) (Lot, error) {
	if store.getLotError != nil {
		return Lot{}, store.getLotError
	}
	lot, exists := store.lots[lotID]
	if !exists {
		return Lot{}, ErrUnknownLot
	}
	return lot, nil
}

func (store *stubStore) ListSpendableLots(ctx context.Context, userID string, atUnixUTC int64) ([]Lot, error) {
	if store.listLotsError != nil {
		return nil, store.listLotsError
	}
	lots := make([]Lot, 0, len(store.lots))
	for _, lot := range store.lots {
		if lot.UserID != userID || lot.Status != LotStatusActive {
			continue
		}
		if lot.ExpiresAtUnixUTC != 0 && lot.ExpiresAtUnixUTC <= atUnixUTC {
			continue
		}
		if lot.Remaining.Sign() <= 0 {
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
	return lots, nil
}

func (store *stubStore) UpdateLot(ctx context.Context, lot Lot) error {
	if store.updateLotError != nil {
		return store.updateLotError
	}
	if _, exists := store.lots[lot.LotID]; !exists {
		return ErrUnknownLot
	}
	store.lots[lot.LotID] = lot
	return nil
}

func (store *stubStore) InsertFreeze(ctx context.Context, freeze Freeze) error {
	if store.insertFreezeError != nil {
		return store.insertFreezeError
	}
	store.freezes[freeze.FreezeID] = freeze
	return nil
}

func (store *stubStore) ListFreezesByTransaction(ctx context.Context, transactionID string) ([]Freeze, error) {
	if store.listFreezesError != nil {
		return nil, store.listFreezesError
	}
	freezes := make([]Freeze, 0, 4)
	for _, freeze := range store.freezes {
		if freeze.TransactionID == transactionID {
			freezes = append(freezes, freeze)
		}
	}
	sort.Slice(freezes, func(left, right int) bool {
		return freezes[left].FreezeID < freezes[right].FreezeID
	})
	return freezes, nil
}

func (store *stubStore) UpdateFreezeStatus(ctx context.Context, freezeID string, from, to FreezeStatus, atUnixUTC int64) (bool, error) {
	if store.updateFreezeError != nil {
		return false, store.updateFreezeError
	}
	freeze, exists := store.freezes[freezeID]
	if !exists || freeze.Status != from {
		return false, nil
	}
	freeze.Status = to
	switch to {
	case FreezeStatusConsumed:
		freeze.ConsumedAtUnixUTC = atUnixUTC
	case FreezeStatusReleased:
		freeze.ReleasedAtUnixUTC = atUnixUTC
	}
	store.freezes[freezeID] = freeze
	return true, nil
}

func (store *stubStore) ListExpiredFreezes(ctx context.Context, atUnixUTC int64, limit int) ([]Freeze, error) {
	if store.listExpiredError != nil {
		return nil, store.listExpiredError
	}
	freezes := make([]Freeze, 0, 4)
	for _, freeze := range store.freezes {
		if freeze.Status == FreezeStatusFrozen && freeze.ExpiresAtUnixUTC <= atUnixUTC {
			freezes = append(freezes, freeze)
		}
	}
	sort.Slice(freezes, func(left, right int) bool {
		return freezes[left].FreezeID < freezes[right].FreezeID
	})
	if limit > 0 && len(freezes) > limit {
		freezes = freezes[:limit]
	}
	return freezes, nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, transaction Transaction) error {
	if store.insertTransactionError != nil {
		return store.insertTransactionError
	}
	store.transactions[transaction.TransactionID] = transaction
	return nil
}

func (store *stubStore) GetTransaction(ctx context.Context, transactionID string) (Transaction, error) {
	if store.getTransactionError != nil {
		return Transaction{}, store.getTransactionError
	}
	transaction, exists := store.transactions[transactionID]
	if !exists {
		return Transaction{}, ErrUnknownTransaction
	}
	return transaction, nil
}

func (store *stubStore) UpdateTransactionStatus(ctx context.Context, transactionID string, from, to TxnStatus) error {
	if store.updateTransactionError != nil {
		return store.updateTransactionError
	}
	transaction, exists := store.transactions[transactionID]
	if !exists {
		return ErrUnknownTransaction
	}
	if transaction.Status != from {
		return fmt.Errorf("%w: transaction %s is %s", ErrInvalidState, transactionID, transaction.Status)
	}
	transaction.Status = to
	store.transactions[transactionID] = transaction
	return nil
}

func (store *stubStore) UpdateTransactionGatewayRef(ctx context.Context, transactionID string, gatewayRef string) error {
	transaction, exists := store.transactions[transactionID]
	if !exists {
		return ErrUnknownTransaction
	}
	transaction.GatewayRef = gatewayRef
	store.transactions[transactionID] = transaction
	return nil
}

func (store *stubStore) ListTransactions(ctx context.Context, userID string, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	if store.listTransactionsError != nil {
		return nil, store.listTransactionsError
	}
	transactions := make([]Transaction, 0, len(store.transactions))
	for _, transaction := range store.transactions {
		if transaction.UserID == userID && transaction.CreatedUnixUTC < beforeUnixUTC {
			transactions = append(transactions, transaction)
		}
	}
	sort.Slice(transactions, func(left, right int) bool {
		return transactions[left].CreatedUnixUTC > transactions[right].CreatedUnixUTC
	})
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

// seedLot plants an active lot directly into the store and keeps the account
// cache in step with it.
func (store *stubStore) seedLot(test *testing.T, userID string, remaining string, acquiredAtUnixUTC int64, expiresAtUnixUTC int64) Lot {
	test.Helper()
	store.lotSequence++
	amount := mustDecimal(test, remaining)
	lot := Lot{
		LotID:             fmt.Sprintf("lot-%03d", store.lotSequence),
		UserID:            userID,
		Source:            LotSourceGiftCard,
		Amount:            amount,
		Remaining:         amount,
		Currency:          "USD",
		AcquiredAtUnixUTC: acquiredAtUnixUTC,
		ExpiresAtUnixUTC:  expiresAtUnixUTC,
		Status:            LotStatusActive,
	}
	store.lots[lot.LotID] = lot
	account, err := store.GetOrCreateAccount(context.Background(), userID)
	if err != nil {
		test.Fatalf("seed account: %v", err)
	}
	account.Available = account.Available.Add(amount)
	store.accounts[userID] = account
	return lot
}

func (store *stubStore) mustLot(test *testing.T, lotID string) Lot {
	test.Helper()
	lot, exists := store.lots[lotID]
	if !exists {
		test.Fatalf("lot %s not found", lotID)
	}
	return lot
}

func (store *stubStore) mustFreeze(test *testing.T, freezeID string) Freeze {
	test.Helper()
	freeze, exists := store.freezes[freezeID]
	if !exists {
		test.Fatalf("freeze %s not found", freezeID)
	}
	return freeze
}

func (store *stubStore) mustTransaction(test *testing.T, transactionID string) Transaction {
	test.Helper()
	transaction, exists := store.transactions[transactionID]
	if !exists {
		test.Fatalf("transaction %s not found", transactionID)
	}
	return transaction
}

func (store *stubStore) mustAccount(test *testing.T, userID string) Account {
	test.Helper()
	account, exists := store.accounts[userID]
	if !exists {
		test.Fatalf("account %s not found", userID)
	}
	return account
}

// lotTotal sums remaining over every lot of the user regardless of status.
func (store *stubStore) lotTotal(userID string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range store.lots {
		if lot.UserID == userID {
			total = total.Add(lot.Remaining)
		}
	}
	return total
}

type stubClock struct {
	nowUnixUTC int64
}

func (clock *stubClock) now() int64 {
	return clock.nowUnixUTC
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1_000_000 }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustNewServiceWithClock(test *testing.T, store Store, clock *stubClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, clock.now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustOrderRef(test *testing.T, raw string) OrderRef {
	test.Helper()
	orderRef, err := NewOrderRef(raw)
	if err != nil {
		test.Fatalf("order ref: %v", err)
	}
	return orderRef
}

func mustCurrency(test *testing.T, raw string) Currency {
	test.Helper()
	currency, err := NewCurrency(raw)
	if err != nil {
		test.Fatalf("currency: %v", err)
	}
	return currency
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}

func assertDecimalEqual(test *testing.T, want, got decimal.Decimal, label string) {
	test.Helper()
	if !want.Equal(got) {
		test.Fatalf("%s: expected %s, got %s", label, want, got)
	}
}
