package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AvailableBalance sums remaining value over the user's spendable lots.
// Lots that are locked, time-expired, or drained are excluded.
func (service *Service) AvailableBalance(ctx context.Context, userID UserID) (decimal.Decimal, error) {
	lots, err := service.store.ListSpendableLots(ctx, userID.String(), service.nowFn())
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.Remaining)
	}
	return total, nil
}

// SelectLotsFIFO computes the lot breakdown that a freeze of amount would
// take, oldest acquisition first. Read-only: mutation happens in Freeze so
// selection and decrement share one lock scope.
func (service *Service) SelectLotsFIFO(ctx context.Context, userID UserID, amount decimal.Decimal) ([]LotAllocation, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: selection amount must be positive", ErrInvalidAmount)
	}
	lots, err := service.store.ListSpendableLots(ctx, userID.String(), service.nowFn())
	if err != nil {
		return nil, err
	}
	return allocateFIFO(lots, amount)
}

// allocateFIFO greedily takes min(lot.remaining, outstanding) per lot. The
// store returns lots ordered by acquired_at ascending with lot id as the
// tie-break, so the allocation order is deterministic.
func allocateFIFO(lots []Lot, amount decimal.Decimal) ([]LotAllocation, error) {
	allocations := make([]LotAllocation, 0, len(lots))
	outstanding := amount
	for _, lot := range lots {
		if outstanding.Sign() == 0 {
			break
		}
		if lot.Remaining.Sign() <= 0 {
			continue
		}
		portion := decimal.Min(lot.Remaining, outstanding)
		allocations = append(allocations, LotAllocation{
			LotID:  lot.LotID,
			Source: lot.Source,
			Amount: portion,
		})
		outstanding = outstanding.Sub(portion)
	}
	if outstanding.Sign() > 0 {
		return nil, fmt.Errorf("%w: short %s of requested %s", ErrInsufficientFunds, outstanding, amount)
	}
	return allocations, nil
}
