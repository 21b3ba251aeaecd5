package gormstore

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

func openTestDatabase(test *testing.T) *gorm.DB {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/wallet.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	if err := Migrate(database); err != nil {
		test.Fatalf("migrate failed: %v", err)
	}
	return database
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}

func TestGetAccountForUpdateCreatesActiveAccount(test *testing.T) {
	store := New(openTestDatabase(test))

	account, err := store.GetAccountForUpdate(context.Background(), "first-use-user")
	if err != nil {
		test.Fatalf("get for update: %v", err)
	}
	if account.Status != wallet.AccountStatusActive {
		test.Fatalf("expected active account, got %s", account.Status)
	}
	if !account.Available.IsZero() || !account.Frozen.IsZero() {
		test.Fatalf("expected zero balances, got %s/%s", account.Available, account.Frozen)
	}

	again, err := store.GetAccountForUpdate(context.Background(), "first-use-user")
	if err != nil {
		test.Fatalf("second get for update: %v", err)
	}
	if again.UserID != account.UserID {
		test.Fatalf("expected the same row, got %q", again.UserID)
	}
}

func TestDuplicateAccountInsertClassifiedAsUniqueViolation(test *testing.T) {
	database := openTestDatabase(test)

	seeded := WalletAccount{UserID: "race-user", Status: wallet.AccountStatusActive.String()}
	if err := database.Create(&seeded).Error; err != nil {
		test.Fatalf("seed account: %v", err)
	}
	duplicate := WalletAccount{UserID: "race-user", Status: wallet.AccountStatusActive.String()}
	err := database.Create(&duplicate).Error
	if err == nil {
		test.Fatal("expected duplicate insert to fail")
	}
	if !isUniqueViolation(err) {
		test.Fatalf("duplicate insert not classified as unique violation: %v", err)
	}
	if translated := translateConflict(err); translated != err {
		test.Fatalf("expected translateConflict to pass duplicates through, got %v", translated)
	}
}

func TestTransactionAllocationsRoundTrip(test *testing.T) {
	store := New(openTestDatabase(test))

	transaction := wallet.Transaction{
		TransactionID: "txn-alloc-1",
		UserID:        "alloc-user",
		Direction:     wallet.DirectionDebit,
		Amount:        mustDecimal(test, "45.50"),
		Currency:      "USD",
		Type:          wallet.TxnTypePurchase,
		Status:        wallet.TxnStatusPending,
		Ref:           wallet.Reference{Kind: wallet.RefKindOrder, ID: "order-alloc"},
		Allocations: []wallet.LotAllocation{
			{LotID: "lot-a", FreezeID: "freeze-a", Source: wallet.LotSourceGiftCard, Amount: mustDecimal(test, "30")},
			{LotID: "lot-b", FreezeID: "freeze-b", Source: wallet.LotSourceRefund, Amount: mustDecimal(test, "15.50")},
		},
		CreatedUnixUTC: 1_000_000,
	}
	if err := store.InsertTransaction(context.Background(), transaction); err != nil {
		test.Fatalf("insert transaction: %v", err)
	}

	loaded, err := store.GetTransaction(context.Background(), "txn-alloc-1")
	if err != nil {
		test.Fatalf("get transaction: %v", err)
	}
	if len(loaded.Allocations) != 2 {
		test.Fatalf("expected two allocations, got %d", len(loaded.Allocations))
	}
	if loaded.Allocations[0].LotID != "lot-a" || loaded.Allocations[1].LotID != "lot-b" {
		test.Fatalf("allocation order lost: %+v", loaded.Allocations)
	}
	if !loaded.Allocations[1].Amount.Equal(mustDecimal(test, "15.50")) {
		test.Fatalf("allocation amount mismatch: %s", loaded.Allocations[1].Amount)
	}
	if !loaded.Amount.Equal(transaction.Amount) {
		test.Fatalf("amount mismatch: %s", loaded.Amount)
	}
}

func TestMarshalAllocationsEmptyIsJSONArray(test *testing.T) {
	encoded, err := marshalAllocations(nil)
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	if string(encoded) != emptyAllocationsJSON {
		test.Fatalf("expected %q, got %q", emptyAllocationsJSON, string(encoded))
	}
}
