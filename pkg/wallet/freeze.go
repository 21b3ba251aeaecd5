package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Freeze reserves amount against orderRef across the user's lots, FIFO by
// acquisition. On success the lots are decremented, one freeze row exists
// per funded lot, a pending debit journal row summarizes the breakdown, and
// the amount has moved from available to frozen. Any failure rolls the
// whole step back.
func (service *Service) Freeze(ctx context.Context, userID UserID, amount decimal.Decimal, currency Currency, orderRef OrderRef) (FreezeBundle, error) {
	var bundle FreezeBundle
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: freeze amount must be positive", ErrInvalidAmount)
		}
		account, err := txStore.GetAccountForUpdate(ctx, userID.String())
		if err != nil {
			return err
		}
		if account.Status != AccountStatusActive {
			return fmt.Errorf("%w: account is %s", ErrAccountInactive, account.Status)
		}
		nowUnixUTC := service.nowFn()
		lots, err := txStore.ListSpendableLots(ctx, userID.String(), nowUnixUTC)
		if err != nil {
			return err
		}
		allocations, err := allocateFIFO(lots, amount)
		if err != nil {
			return err
		}
		lotsByID := make(map[string]Lot, len(lots))
		for _, lot := range lots {
			lotsByID[lot.LotID] = lot
		}
		transactionID := uuid.NewString()
		freezes := make([]Freeze, 0, len(allocations))
		for index := range allocations {
			allocation := &allocations[index]
			lot := lotsByID[allocation.LotID]
			lot.Remaining = lot.Remaining.Sub(allocation.Amount)
			if lot.Remaining.Sign() < 0 {
				return fmt.Errorf("%w: lot %s overdrawn", ErrInvalidBalance, lot.LotID)
			}
			if lot.Remaining.IsZero() {
				lot.Status = LotStatusExpired
			}
			if err := txStore.UpdateLot(ctx, lot); err != nil {
				return err
			}
			lotsByID[lot.LotID] = lot
			freeze := Freeze{
				FreezeID:         uuid.NewString(),
				LotID:            lot.LotID,
				UserID:           userID.String(),
				OrderRef:         orderRef.String(),
				TransactionID:    transactionID,
				Amount:           allocation.Amount,
				Status:           FreezeStatusFrozen,
				ExpiresAtUnixUTC: nowUnixUTC + service.freezeTTLSeconds,
				CreatedUnixUTC:   nowUnixUTC,
			}
			if err := txStore.InsertFreeze(ctx, freeze); err != nil {
				return err
			}
			allocation.FreezeID = freeze.FreezeID
			freezes = append(freezes, freeze)
		}
		transaction := Transaction{
			TransactionID:  transactionID,
			UserID:         userID.String(),
			Direction:      DirectionDebit,
			Amount:         amount,
			Currency:       currency.String(),
			Type:           TxnTypePurchase,
			Status:         TxnStatusPending,
			Ref:            Reference{Kind: RefKindOrder, ID: orderRef.String()},
			Allocations:    allocations,
			CreatedUnixUTC: nowUnixUTC,
		}
		if err := txStore.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
		account.Available = account.Available.Sub(amount)
		account.Frozen = account.Frozen.Add(amount)
		if account.Available.Sign() < 0 {
			return fmt.Errorf("%w: available below zero after freeze", ErrInvalidBalance)
		}
		if err := txStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		bundle = FreezeBundle{Transaction: transaction, Freezes: freezes}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationFreeze,
		UserID:        userID.String(),
		OrderRef:      orderRef.String(),
		TransactionID: bundle.Transaction.TransactionID,
		Amount:        amount,
		Error:         operationError,
	})
	if operationError != nil {
		return FreezeBundle{}, operationError
	}
	return bundle, nil
}

// Commit finalizes a freeze once the paired payment step succeeded: every
// freeze turns consumed, the journal row completes, and the frozen amount
// is written off. Valid only while the transaction is pending.
func (service *Service) Commit(ctx context.Context, transactionID string, gatewayRef string) error {
	var userID string
	var amount decimal.Decimal
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		transaction, err := txStore.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if transaction.Status != TxnStatusPending {
			return fmt.Errorf("%w: commit on %s transaction %s", ErrInvalidState, transaction.Status, transactionID)
		}
		userID = transaction.UserID
		amount = transaction.Amount
		account, err := txStore.GetAccountForUpdate(ctx, transaction.UserID)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		freezes, err := txStore.ListFreezesByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		for _, freeze := range freezes {
			changed, err := txStore.UpdateFreezeStatus(ctx, freeze.FreezeID, FreezeStatusFrozen, FreezeStatusConsumed, nowUnixUTC)
			if err != nil {
				return err
			}
			if !changed {
				return fmt.Errorf("%w: freeze %s already resolved", ErrInvalidState, freeze.FreezeID)
			}
		}
		if err := txStore.UpdateTransactionStatus(ctx, transactionID, TxnStatusPending, TxnStatusCompleted); err != nil {
			return err
		}
		if gatewayRef != "" {
			if err := txStore.UpdateTransactionGatewayRef(ctx, transactionID, gatewayRef); err != nil {
				return err
			}
		}
		account.Frozen = account.Frozen.Sub(transaction.Amount)
		if account.Frozen.Sign() < 0 {
			return fmt.Errorf("%w: frozen below zero after commit", ErrInvalidBalance)
		}
		return txStore.UpdateAccount(ctx, account)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCommit,
		UserID:        userID,
		TransactionID: transactionID,
		Amount:        amount,
		Error:         operationError,
	})
	return operationError
}

// Release is the compensating action: frozen value flows back to the lots
// that funded it and the journal row fails. Re-invoking on an
// already-released transaction is a no-op, and freezes that individually
// reached a terminal state are skipped so funds are never restored twice.
func (service *Service) Release(ctx context.Context, transactionID string) error {
	var userID string
	var amount decimal.Decimal
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		transaction, err := txStore.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		userID = transaction.UserID
		amount = transaction.Amount
		if transaction.Status.Terminal() {
			return nil
		}
		if transaction.Status != TxnStatusPending {
			return fmt.Errorf("%w: release on %s transaction %s", ErrInvalidState, transaction.Status, transactionID)
		}
		account, err := txStore.GetAccountForUpdate(ctx, transaction.UserID)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		freezes, err := txStore.ListFreezesByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		restored := decimal.Zero
		for _, freeze := range freezes {
			changed, err := txStore.UpdateFreezeStatus(ctx, freeze.FreezeID, FreezeStatusFrozen, FreezeStatusReleased, nowUnixUTC)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			lot, err := txStore.GetLotForUpdate(ctx, freeze.LotID)
			if err != nil {
				return err
			}
			lot.Remaining = lot.Remaining.Add(freeze.Amount)
			if lot.Remaining.GreaterThan(lot.Amount) {
				return fmt.Errorf("%w: lot %s restored above face value", ErrInvalidBalance, lot.LotID)
			}
			if lot.Status == LotStatusExpired && (lot.ExpiresAtUnixUTC == 0 || lot.ExpiresAtUnixUTC > nowUnixUTC) {
				lot.Status = LotStatusActive
			}
			if err := txStore.UpdateLot(ctx, lot); err != nil {
				return err
			}
			restored = restored.Add(freeze.Amount)
		}
		if err := txStore.UpdateTransactionStatus(ctx, transactionID, TxnStatusPending, TxnStatusFailed); err != nil {
			return err
		}
		account.Available = account.Available.Add(restored)
		account.Frozen = account.Frozen.Sub(restored)
		if account.Frozen.Sign() < 0 {
			return fmt.Errorf("%w: frozen below zero after release", ErrInvalidBalance)
		}
		return txStore.UpdateAccount(ctx, account)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationRelease,
		UserID:        userID,
		TransactionID: transactionID,
		Amount:        amount,
		Error:         operationError,
	})
	return operationError
}

// SweepExpiredFreezes releases freezes whose TTL elapsed without a commit or
// release. This is the recovery path for crashed or abandoned checkouts, so
// it must run periodically. Returns how many transactions were released.
func (service *Service) SweepExpiredFreezes(ctx context.Context, limit int) (int, error) {
	expired, err := service.store.ListExpiredFreezes(ctx, service.nowFn(), limit)
	if err != nil {
		return 0, err
	}
	released := 0
	seen := make(map[string]struct{}, len(expired))
	for _, freeze := range expired {
		if _, done := seen[freeze.TransactionID]; done {
			continue
		}
		seen[freeze.TransactionID] = struct{}{}
		if err := service.Release(ctx, freeze.TransactionID); err != nil {
			return released, WrapError(operationSweep, "freeze", "release", err)
		}
		released++
	}
	return released, nil
}
