package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service contains the ledger domain logic over a Store.
type Service struct {
	store            Store
	gateway          GatewayClient
	nowFn            func() int64
	logger           OperationLogger
	freezeTTLSeconds int64
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, freezeTTLSeconds: DefaultFreezeTTLSeconds}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Balance returns the account's aggregate buckets, creating the account on
// first use.
func (service *Service) Balance(ctx context.Context, userID UserID) (Balance, error) {
	account, err := service.store.GetOrCreateAccount(ctx, userID.String())
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Available: account.Available,
		Frozen:    account.Frozen,
		Pending:   account.Pending,
	}, nil
}

// CreditLot issues new wallet value: one lot plus a completed credit journal
// row, and bumps the account's available balance.
func (service *Service) CreditLot(ctx context.Context, userID UserID, source LotSource, amount decimal.Decimal, currency Currency, expiresAtUnixUTC int64, ref Reference) (Lot, error) {
	var issued Lot
	operationError := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if amount.Sign() <= 0 {
			return fmt.Errorf("%w: credit amount must be positive", ErrInvalidAmount)
		}
		if _, err := ParseLotSource(source.String()); err != nil {
			return err
		}
		if _, err := ParseRefKind(ref.Kind.String()); err != nil {
			return err
		}
		account, err := txStore.GetAccountForUpdate(ctx, userID.String())
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		if expiresAtUnixUTC != 0 && expiresAtUnixUTC <= nowUnixUTC {
			return fmt.Errorf("%w: lot would expire before issuance", ErrInvalidAmount)
		}
		lot := Lot{
			LotID:             uuid.NewString(),
			UserID:            userID.String(),
			Source:            source,
			Amount:            amount,
			Remaining:         amount,
			Currency:          currency.String(),
			AcquiredAtUnixUTC: nowUnixUTC,
			ExpiresAtUnixUTC:  expiresAtUnixUTC,
			Status:            LotStatusActive,
		}
		if err := txStore.InsertLot(ctx, lot); err != nil {
			return err
		}
		transaction := Transaction{
			TransactionID: uuid.NewString(),
			UserID:        userID.String(),
			Direction:     DirectionCredit,
			Amount:        amount,
			Currency:      currency.String(),
			Type:          creditTxnType(source),
			Status:        TxnStatusCompleted,
			Ref:           ref,
			Allocations: []LotAllocation{{
				LotID:  lot.LotID,
				Source: source,
				Amount: amount,
			}},
			CreatedUnixUTC: nowUnixUTC,
		}
		if err := txStore.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
		account.Available = account.Available.Add(amount)
		if err := txStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		issued = lot
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCredit,
		UserID:    userID.String(),
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Lot{}, operationError
	}
	return issued, nil
}

// SetAccountStatus locks, suspends, or reactivates an account. Locked and
// suspended accounts reject new freezes; in-flight freezes still resolve.
func (service *Service) SetAccountStatus(ctx context.Context, userID UserID, status AccountStatus) error {
	return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if _, err := ParseAccountStatus(status.String()); err != nil {
			return err
		}
		account, err := txStore.GetAccountForUpdate(ctx, userID.String())
		if err != nil {
			return err
		}
		account.Status = status
		return txStore.UpdateAccount(ctx, account)
	})
}

// ListActiveLots returns the user's spendable lots at the current time,
// oldest acquisition first. Locked, drained, and time-expired lots are
// excluded, the same filter that funds freezes.
func (service *Service) ListActiveLots(ctx context.Context, userID UserID) ([]Lot, error) {
	return service.store.ListSpendableLots(ctx, userID.String(), service.nowFn())
}

// ListTransactions returns journal rows for a user before a cutoff time,
// newest first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Transaction, error) {
	if beforeUnixUTC == 0 {
		beforeUnixUTC = service.nowFn() + 1
	}
	return service.store.ListTransactions(ctx, userID.String(), beforeUnixUTC, limit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func creditTxnType(source LotSource) TxnType {
	switch source {
	case LotSourceRefund:
		return TxnTypeRefundCredit
	case LotSourceAdjustment:
		return TxnTypeAdminAdjustment
	default:
		return TxnTypeRedeem
	}
}
