package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing wallet operation.
type OperationLog struct {
	Operation     string
	UserID        string
	OrderRef      string
	TransactionID string
	Amount        decimal.Decimal
	Status        string
	Error         error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithFreezeTTL overrides the freeze time-to-live in seconds.
func WithFreezeTTL(seconds int64) ServiceOption {
	return func(service *Service) {
		if seconds > 0 {
			service.freezeTTLSeconds = seconds
		}
	}
}

// WithGatewayClient wires the external payment processor used for the card
// leg of split payments.
func WithGatewayClient(gateway GatewayClient) ServiceOption {
	return func(service *Service) {
		service.gateway = gateway
	}
}
