package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

const (
	clockUnixUTC  = int64(1_700_000_000)
	farFutureUnix = int64(2_000_000_000)
)

func mustService(test *testing.T, store *Store) *wallet.Service {
	test.Helper()
	service, err := wallet.NewService(store, func() int64 { return clockUnixUTC })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustCredit(test *testing.T, service *wallet.Service, userID wallet.UserID, amount string) {
	test.Helper()
	currency, err := wallet.NewCurrency("USD")
	if err != nil {
		test.Fatalf("currency: %v", err)
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	reference := wallet.Reference{Kind: wallet.RefKindAdminAction, ID: "seed"}
	if _, err := service.CreditLot(context.Background(), userID, wallet.LotSourceGiftCard, parsed, currency, farFutureUnix, reference); err != nil {
		test.Fatalf("credit: %v", err)
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := New()
	userID := "rollback-user"
	injected := errors.New("boom")

	err := store.WithTx(context.Background(), func(ctx context.Context, txStore wallet.Store) error {
		if _, err := txStore.GetAccountForUpdate(ctx, userID); err != nil {
			return err
		}
		return injected
	})
	if !errors.Is(err, injected) {
		test.Fatalf("expected injected error, got %v", err)
	}
	if _, found := store.accounts[userID]; found {
		test.Fatalf("expected account creation rolled back")
	}
}

func TestConcurrentFreezesNeverOverspend(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	userID, err := wallet.NewUserID("racing-user")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	mustCredit(test, service, userID, "100")

	currency, err := wallet.NewCurrency("USD")
	if err != nil {
		test.Fatalf("currency: %v", err)
	}
	amount, err := decimal.NewFromString("60")
	if err != nil {
		test.Fatalf("amount: %v", err)
	}

	const workers = 8
	var waitGroup sync.WaitGroup
	successes := make(chan string, workers)
	for index := 0; index < workers; index++ {
		waitGroup.Add(1)
		go func(worker int) {
			defer waitGroup.Done()
			orderRef, err := wallet.NewOrderRef("order-race")
			if err != nil {
				test.Errorf("order ref: %v", err)
				return
			}
			bundle, freezeErr := service.Freeze(context.Background(), userID, amount, currency, orderRef)
			if freezeErr == nil {
				successes <- bundle.Transaction.TransactionID
				return
			}
			if !errors.Is(freezeErr, wallet.ErrInsufficientFunds) {
				test.Errorf("unexpected freeze error: %v", freezeErr)
			}
		}(index)
	}
	waitGroup.Wait()
	close(successes)

	succeeded := 0
	for range successes {
		succeeded++
	}
	if succeeded != 1 {
		test.Fatalf("expected exactly one freeze of 60 against 100, got %d", succeeded)
	}
	balance, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if !balance.Available.Equal(decimal.NewFromInt(40)) {
		test.Fatalf("expected 40 available, got %s", balance.Available)
	}
	if !balance.Frozen.Equal(decimal.NewFromInt(60)) {
		test.Fatalf("expected 60 frozen, got %s", balance.Frozen)
	}
}

func TestFreezeCommitAcrossStore(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	userID, err := wallet.NewUserID("commit-user")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	mustCredit(test, service, userID, "30")

	currency, err := wallet.NewCurrency("USD")
	if err != nil {
		test.Fatalf("currency: %v", err)
	}
	orderRef, err := wallet.NewOrderRef("order-commit")
	if err != nil {
		test.Fatalf("order ref: %v", err)
	}
	bundle, err := service.Freeze(context.Background(), userID, decimal.NewFromInt(30), currency, orderRef)
	if err != nil {
		test.Fatalf("freeze: %v", err)
	}
	if err := service.Commit(context.Background(), bundle.Transaction.TransactionID, "gw-mem"); err != nil {
		test.Fatalf("commit: %v", err)
	}
	balance, err := service.Balance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if !balance.Available.IsZero() || !balance.Frozen.IsZero() {
		test.Fatalf("expected empty wallet after commit, got %s available %s frozen", balance.Available, balance.Frozen)
	}
	transactions, err := service.ListTransactions(context.Background(), userID, 0, 10)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(transactions) != 2 {
		test.Fatalf("expected credit and purchase rows, got %d", len(transactions))
	}
}
