package wallet

import "context"

// Store is the persistence contract used by Service. Implementations must
// give WithTx all-or-nothing semantics and must make GetAccountForUpdate
// take an exclusive row lock so mutation per user is serialized. Store
// methods surface lock timeouts and serialization failures as
// ErrConcurrencyConflict.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetOrCreateAccount(ctx context.Context, userID string) (Account, error)
	GetAccountForUpdate(ctx context.Context, userID string) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error

	InsertLot(ctx context.Context, lot Lot) error
	GetLotForUpdate(ctx context.Context, lotID string) (Lot, error)
	// ListSpendableLots returns active, unexpired lots with remaining value,
	// ordered by acquired_at ascending then lot id ascending.
	ListSpendableLots(ctx context.Context, userID string, atUnixUTC int64) ([]Lot, error)
	UpdateLot(ctx context.Context, lot Lot) error

	InsertFreeze(ctx context.Context, freeze Freeze) error
	ListFreezesByTransaction(ctx context.Context, transactionID string) ([]Freeze, error)
	// UpdateFreezeStatus applies a compare-and-swap status transition and
	// stamps consumed_at/released_at as appropriate. It reports false when
	// the freeze was not in the from status, which callers treat as
	// already-resolved rather than an error.
	UpdateFreezeStatus(ctx context.Context, freezeID string, from, to FreezeStatus, atUnixUTC int64) (bool, error)
	ListExpiredFreezes(ctx context.Context, atUnixUTC int64, limit int) ([]Freeze, error)

	InsertTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID string, from, to TxnStatus) error
	UpdateTransactionGatewayRef(ctx context.Context, transactionID string, gatewayRef string) error
	ListTransactions(ctx context.Context, userID string, beforeUnixUTC int64, limit int) ([]Transaction, error)
}
