package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

const (
	dayOneUnixUTC   = int64(900_000)
	dayTwoUnixUTC   = int64(940_000)
	dayThreeUnixUTC = int64(980_000)
	farFutureUnix   = int64(2_000_000)
)

func TestSelectLotsFIFOOrdersByAcquisition(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, "fifo-user")
	lotDayOne := store.seedLot(test, userID.String(), "10", dayOneUnixUTC, farFutureUnix)
	lotDayThree := store.seedLot(test, userID.String(), "10", dayThreeUnixUTC, farFutureUnix)
	lotDayTwo := store.seedLot(test, userID.String(), "10", dayTwoUnixUTC, farFutureUnix)
	service := mustNewService(test, store)

	allocations, err := service.SelectLotsFIFO(context.Background(), userID, mustDecimal(test, "15"))
	if err != nil {
		test.Fatalf("select: %v", err)
	}
	if len(allocations) != 2 {
		test.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
	if allocations[0].LotID != lotDayOne.LotID {
		test.Fatalf("expected oldest lot first, got %s", allocations[0].LotID)
	}
	assertDecimalEqual(test, mustDecimal(test, "10"), allocations[0].Amount, "oldest lot portion")
	if allocations[1].LotID != lotDayTwo.LotID {
		test.Fatalf("expected second-oldest lot, got %s", allocations[1].LotID)
	}
	assertDecimalEqual(test, mustDecimal(test, "5"), allocations[1].Amount, "second lot portion")
	if allocations[0].LotID == lotDayThree.LotID || allocations[1].LotID == lotDayThree.LotID {
		test.Fatalf("newest lot must stay untouched")
	}
}

func TestSelectLotsFIFOTieBreakByLotID(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, "tie-user")
	first := store.seedLot(test, userID.String(), "10", dayOneUnixUTC, farFutureUnix)
	store.seedLot(test, userID.String(), "10", dayOneUnixUTC, farFutureUnix)
	service := mustNewService(test, store)

	allocations, err := service.SelectLotsFIFO(context.Background(), userID, mustDecimal(test, "5"))
	if err != nil {
		test.Fatalf("select: %v", err)
	}
	if len(allocations) != 1 {
		test.Fatalf("expected 1 allocation, got %d", len(allocations))
	}
	if allocations[0].LotID != first.LotID {
		test.Fatalf("expected lowest lot id on acquisition tie, got %s", allocations[0].LotID)
	}
}

func TestSelectLotsFIFOSkipsExpiredLots(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, "expired-user")
	expired := store.seedLot(test, userID.String(), "40", dayOneUnixUTC, dayTwoUnixUTC)
	fresh := store.seedLot(test, userID.String(), "10", dayTwoUnixUTC, farFutureUnix)
	service := mustNewService(test, store) // clock is past the first lot's expiry

	allocations, err := service.SelectLotsFIFO(context.Background(), userID, mustDecimal(test, "10"))
	if err != nil {
		test.Fatalf("select: %v", err)
	}
	if len(allocations) != 1 || allocations[0].LotID != fresh.LotID {
		test.Fatalf("expected only the unexpired lot, got %+v", allocations)
	}

	_, err = service.SelectLotsFIFO(context.Background(), userID, mustDecimal(test, "20"))
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	assertDecimalEqual(test, mustDecimal(test, "40"), store.mustLot(test, expired.LotID).Remaining, "expired lot untouched")
}

func TestSelectLotsFIFOInsufficientFundsLeavesLotsUnchanged(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, "short-user")
	lot := store.seedLot(test, userID.String(), "30", dayOneUnixUTC, farFutureUnix)
	service := mustNewService(test, store)

	_, err := service.SelectLotsFIFO(context.Background(), userID, mustDecimal(test, "31"))
	if !errors.Is(err, ErrInsufficientFunds) {
		test.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	assertDecimalEqual(test, mustDecimal(test, "30"), store.mustLot(test, lot.LotID).Remaining, "lot remaining")
}

func TestSelectLotsFIFORejectsNonPositiveAmount(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "zero-user")

	_, err := service.SelectLotsFIFO(context.Background(), userID, decimal.Zero)
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAvailableBalanceSumsSpendableLots(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	userID := mustUserID(test, "balance-user")
	store.seedLot(test, userID.String(), "12.50", dayOneUnixUTC, farFutureUnix)
	store.seedLot(test, userID.String(), "7.25", dayTwoUnixUTC, farFutureUnix)
	store.seedLot(test, userID.String(), "100", dayOneUnixUTC, dayTwoUnixUTC) // time-expired
	service := mustNewService(test, store)

	available, err := service.AvailableBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("available balance: %v", err)
	}
	assertDecimalEqual(test, mustDecimal(test, "19.75"), available, "available balance")
}

func TestAvailableBalanceStoreError(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.listLotsError = errors.New("lots unavailable")
	service := mustNewService(test, store)
	userID := mustUserID(test, "error-user")

	if _, err := service.AvailableBalance(context.Background(), userID); err == nil {
		test.Fatalf("expected store error")
	}
}
