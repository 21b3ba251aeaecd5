package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ChargeRequest describes the card leg of a split payment. The coordinator
// never retries a charge automatically; a fresh request carries a fresh
// idempotency key.
type ChargeRequest struct {
	Amount             decimal.Decimal
	Currency           string
	OrderRef           string
	PaymentMethodToken string
	IdempotencyKey     string
}

// ChargeReceipt is the processor's acknowledgement of a successful charge.
type ChargeReceipt struct {
	Reference string
	Message   string
}

// GatewayClient is the opaque external payment processor.
type GatewayClient interface {
	Charge(ctx context.Context, request ChargeRequest) (ChargeReceipt, error)
}

// GatewayError carries the processor's decline code and message.
type GatewayError struct {
	Code    string
	Message string
}

// Error returns the formatted decline.
func (gatewayError *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s", gatewayError.Code, gatewayError.Message)
}
