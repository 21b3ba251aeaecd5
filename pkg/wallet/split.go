package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PreviewSplit shows how totalAmount would divide between wallet balance and
// the gateway. Pure read: nothing is reserved.
func (service *Service) PreviewSplit(ctx context.Context, userID UserID, totalAmount decimal.Decimal) (SplitPreview, error) {
	if totalAmount.Sign() < 0 {
		return SplitPreview{}, fmt.Errorf("%w: total must not be negative", ErrInvalidAmount)
	}
	available, err := service.AvailableBalance(ctx, userID)
	if err != nil {
		return SplitPreview{}, err
	}
	walletApplicable := decimal.Min(available, totalAmount)
	gatewayAmount := totalAmount.Sub(walletApplicable)
	preview := SplitPreview{
		Total:            totalAmount,
		WalletApplicable: walletApplicable,
		GatewayAmount:    gatewayAmount,
	}
	if totalAmount.Sign() > 0 {
		hundred := decimal.NewFromInt(100)
		preview.WalletPercent = walletApplicable.Mul(hundred).Div(totalAmount).Round(2)
		preview.GatewayPercent = hundred.Sub(preview.WalletPercent)
	}
	return preview, nil
}

// ProcessSplitPayment pays totalAmount for orderRef: wallet funds are frozen
// first, the gateway is charged for the remainder outside any store
// transaction, and the freeze then commits or is released. Gateway failure
// after a freeze always triggers compensation before the error propagates.
func (service *Service) ProcessSplitPayment(ctx context.Context, userID UserID, totalAmount decimal.Decimal, currency Currency, orderRef OrderRef, paymentMethodToken string) (SplitOutcome, error) {
	outcome, operationError := service.processSplit(ctx, userID, totalAmount, currency, orderRef, paymentMethodToken)
	service.logOperation(ctx, OperationLog{
		Operation:     operationSplit,
		UserID:        userID.String(),
		OrderRef:      orderRef.String(),
		TransactionID: outcome.TransactionID,
		Amount:        totalAmount,
		Error:         operationError,
	})
	return outcome, operationError
}

func (service *Service) processSplit(ctx context.Context, userID UserID, totalAmount decimal.Decimal, currency Currency, orderRef OrderRef, paymentMethodToken string) (SplitOutcome, error) {
	if totalAmount.Sign() < 0 {
		return SplitOutcome{}, fmt.Errorf("%w: total must not be negative", ErrInvalidAmount)
	}
	if totalAmount.Sign() == 0 {
		return SplitOutcome{WalletApplied: decimal.Zero, GatewayAmount: decimal.Zero}, nil
	}
	preview, err := service.PreviewSplit(ctx, userID, totalAmount)
	if err != nil {
		return SplitOutcome{}, err
	}
	if preview.GatewayAmount.Sign() > 0 && service.gateway == nil {
		return SplitOutcome{}, fmt.Errorf("%w: gateway client is nil", ErrInvalidServiceConfig)
	}
	outcome := SplitOutcome{
		WalletApplied: preview.WalletApplicable,
		GatewayAmount: preview.GatewayAmount,
	}
	hasFreeze := false
	if preview.WalletApplicable.Sign() > 0 {
		bundle, err := service.Freeze(ctx, userID, preview.WalletApplicable, currency, orderRef)
		if err != nil {
			return SplitOutcome{}, err
		}
		outcome.TransactionID = bundle.Transaction.TransactionID
		hasFreeze = true
	}
	if preview.GatewayAmount.Sign() > 0 {
		receipt, chargeErr := service.gateway.Charge(ctx, ChargeRequest{
			Amount:             preview.GatewayAmount,
			Currency:           currency.String(),
			OrderRef:           orderRef.String(),
			PaymentMethodToken: paymentMethodToken,
			IdempotencyKey:     "charge:" + uuid.NewString(),
		})
		if chargeErr != nil {
			if hasFreeze {
				service.compensate(ctx, outcome.TransactionID)
			}
			return SplitOutcome{}, fmt.Errorf("%w: %s", ErrGatewayFailed, chargeErr.Error())
		}
		outcome.GatewayReference = receipt.Reference
	}
	if hasFreeze {
		if err := service.Commit(ctx, outcome.TransactionID, outcome.GatewayReference); err != nil {
			return SplitOutcome{}, err
		}
	}
	return outcome, nil
}

// compensate releases a freeze after a failed gateway charge, retrying a few
// times. If every attempt fails the freeze stays frozen and the TTL sweep
// resolves it.
func (service *Service) compensate(ctx context.Context, transactionID string) {
	var lastErr error
	for attempt := 0; attempt < compensationAttempts; attempt++ {
		lastErr = service.Release(ctx, transactionID)
		if lastErr == nil {
			return
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationRelease,
		TransactionID: transactionID,
		Status:        operationStatusError,
		Error:         lastErr,
	})
}
