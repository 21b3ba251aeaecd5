package wallet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// UserID identifies a wallet owner.
type UserID struct {
	value string
}

// OrderRef ties a reservation to an external checkout order.
type OrderRef struct {
	value string
}

// Currency is an ISO 4217 alphabetic code.
type Currency struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewOrderRef validates and normalizes an order reference.
func NewOrderRef(raw string) (OrderRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OrderRef{}, fmt.Errorf("%w: empty value", ErrInvalidOrderRef)
	}
	return OrderRef{value: trimmed}, nil
}

// String returns the normalized reference.
func (ref OrderRef) String() string {
	return ref.value
}

// NewCurrency validates a three-letter currency code.
func NewCurrency(raw string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if len(normalized) != 3 {
		return Currency{}, fmt.Errorf("%w: expected three-letter code, got %q", ErrInvalidCurrency, raw)
	}
	for _, letter := range normalized {
		if letter < 'A' || letter > 'Z' {
			return Currency{}, fmt.Errorf("%w: expected alphabetic code, got %q", ErrInvalidCurrency, raw)
		}
	}
	return Currency{value: normalized}, nil
}

// String returns the normalized code.
func (currency Currency) String() string {
	return currency.value
}

// AccountStatus defines the account lifecycle.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusLocked    AccountStatus = "locked"
	AccountStatusSuspended AccountStatus = "suspended"
)

// ParseAccountStatus validates a stored account status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	switch AccountStatus(raw) {
	case AccountStatusActive, AccountStatusLocked, AccountStatusSuspended:
		return AccountStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccountStatus, raw)
}

// String returns the stored representation.
func (status AccountStatus) String() string {
	return string(status)
}

// LotSource enumerates where lot value originated.
type LotSource string

const (
	LotSourceGiftCard     LotSource = "gift_card"
	LotSourceRefund       LotSource = "refund"
	LotSourceAdjustment   LotSource = "adjustment"
	LotSourcePromo        LotSource = "promo"
	LotSourceCreditCard   LotSource = "credit_card"
	LotSourceLoyaltyPoint LotSource = "loyalty_point"
)

// ParseLotSource validates a stored lot source.
func ParseLotSource(raw string) (LotSource, error) {
	switch LotSource(raw) {
	case LotSourceGiftCard, LotSourceRefund, LotSourceAdjustment, LotSourcePromo, LotSourceCreditCard, LotSourceLoyaltyPoint:
		return LotSource(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLotSource, raw)
}

// String returns the stored representation.
func (source LotSource) String() string {
	return string(source)
}

// LotStatus defines the lot lifecycle. A lot whose remaining reaches zero is
// expired for spending; releasing a freeze may reactivate it.
type LotStatus string

const (
	LotStatusActive  LotStatus = "active"
	LotStatusExpired LotStatus = "expired"
	LotStatusLocked  LotStatus = "locked"
)

// ParseLotStatus validates a stored lot status.
func ParseLotStatus(raw string) (LotStatus, error) {
	switch LotStatus(raw) {
	case LotStatusActive, LotStatusExpired, LotStatusLocked:
		return LotStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLotStatus, raw)
}

// String returns the stored representation.
func (status LotStatus) String() string {
	return string(status)
}

// FreezeStatus defines the freeze state machine: frozen is the only
// non-terminal state.
type FreezeStatus string

const (
	FreezeStatusFrozen   FreezeStatus = "frozen"
	FreezeStatusConsumed FreezeStatus = "consumed"
	FreezeStatusReleased FreezeStatus = "released"
)

// ParseFreezeStatus validates a stored freeze status.
func ParseFreezeStatus(raw string) (FreezeStatus, error) {
	switch FreezeStatus(raw) {
	case FreezeStatusFrozen, FreezeStatusConsumed, FreezeStatusReleased:
		return FreezeStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFreezeStatus, raw)
}

// Terminal reports whether no further transition is allowed.
func (status FreezeStatus) Terminal() bool {
	return status == FreezeStatusConsumed || status == FreezeStatusReleased
}

// String returns the stored representation.
func (status FreezeStatus) String() string {
	return string(status)
}

// Direction marks a journal row as credit or debit.
type Direction string

const (
	DirectionCredit Direction = "CR"
	DirectionDebit  Direction = "DR"
)

// ParseDirection validates a stored direction.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionCredit, DirectionDebit:
		return Direction(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
}

// String returns the stored representation.
func (direction Direction) String() string {
	return string(direction)
}

// TxnType enumerates journal transaction kinds.
type TxnType string

const (
	TxnTypeRedeem          TxnType = "redeem"
	TxnTypePurchase        TxnType = "purchase"
	TxnTypeRefundCredit    TxnType = "refund_credit"
	TxnTypeAdminAdjustment TxnType = "admin_adjustment"
)

// ParseTxnType validates a stored transaction type.
func ParseTxnType(raw string) (TxnType, error) {
	switch TxnType(raw) {
	case TxnTypeRedeem, TxnTypePurchase, TxnTypeRefundCredit, TxnTypeAdminAdjustment:
		return TxnType(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTxnType, raw)
}

// String returns the stored representation.
func (txnType TxnType) String() string {
	return string(txnType)
}

// TxnStatus defines the journal transaction lifecycle. Completed rows are
// immutable except for the completed-to-reversed transition.
type TxnStatus string

const (
	TxnStatusPending   TxnStatus = "pending"
	TxnStatusCompleted TxnStatus = "completed"
	TxnStatusFailed    TxnStatus = "failed"
	TxnStatusReversed  TxnStatus = "reversed"
)

// ParseTxnStatus validates a stored transaction status.
func ParseTxnStatus(raw string) (TxnStatus, error) {
	switch TxnStatus(raw) {
	case TxnStatusPending, TxnStatusCompleted, TxnStatusFailed, TxnStatusReversed:
		return TxnStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTxnStatus, raw)
}

// Terminal reports whether the journal row can no longer change status.
func (status TxnStatus) Terminal() bool {
	return status == TxnStatusFailed || status == TxnStatusReversed
}

// String returns the stored representation.
func (status TxnStatus) String() string {
	return string(status)
}

// RefKind tags what a journal reference points at.
type RefKind string

const (
	RefKindOrder       RefKind = "order"
	RefKindPayment     RefKind = "payment"
	RefKindAdminAction RefKind = "admin_action"
)

// ParseRefKind validates a stored reference kind.
func ParseRefKind(raw string) (RefKind, error) {
	switch RefKind(raw) {
	case RefKindOrder, RefKindPayment, RefKindAdminAction:
		return RefKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRefKind, raw)
}

// String returns the stored representation.
func (kind RefKind) String() string {
	return string(kind)
}

// Reference links a journal row to the external object that caused it.
type Reference struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

// Account is the per-user aggregate balance cache. It is mutated only inside
// store transactions that hold the account row lock.
type Account struct {
	UserID    string
	Available decimal.Decimal
	Frozen    decimal.Decimal
	Pending   decimal.Decimal
	Status    AccountStatus
}

// Lot is a discrete unit of wallet value with its own remaining balance and
// expiry, consumed FIFO by acquisition time.
type Lot struct {
	LotID             string
	UserID            string
	Source            LotSource
	Amount            decimal.Decimal
	Remaining         decimal.Decimal
	Currency          string
	AcquiredAtUnixUTC int64
	ExpiresAtUnixUTC  int64 // zero means no expiry
	Status            LotStatus
}

// Freeze reserves a portion of one lot against an order until the paired
// payment resolves.
type Freeze struct {
	FreezeID          string
	LotID             string
	UserID            string
	OrderRef          string
	TransactionID     string
	Amount            decimal.Decimal
	Status            FreezeStatus
	ExpiresAtUnixUTC  int64
	ConsumedAtUnixUTC int64
	ReleasedAtUnixUTC int64
	CreatedUnixUTC    int64
}

// LotAllocation records which lot funded which portion of a transaction.
type LotAllocation struct {
	LotID    string          `json:"lot_id"`
	FreezeID string          `json:"freeze_id,omitempty"`
	Source   LotSource       `json:"source"`
	Amount   decimal.Decimal `json:"amount"`
}

// Transaction is one immutable journal row with its lot breakdown.
type Transaction struct {
	TransactionID  string
	UserID         string
	Direction      Direction
	Amount         decimal.Decimal
	Currency       string
	Type           TxnType
	Status         TxnStatus
	Ref            Reference
	GatewayRef     string
	Allocations    []LotAllocation
	CreatedUnixUTC int64
}

// Balance view for an account.
type Balance struct {
	Available decimal.Decimal
	Frozen    decimal.Decimal
	Pending   decimal.Decimal
}

// FreezeBundle is the result of a successful freeze: the pending journal row
// plus the per-lot freezes backing it.
type FreezeBundle struct {
	Transaction Transaction
	Freezes     []Freeze
}

// SplitPreview shows how a checkout total would divide between wallet and
// gateway without mutating anything.
type SplitPreview struct {
	Total            decimal.Decimal
	WalletApplicable decimal.Decimal
	GatewayAmount    decimal.Decimal
	WalletPercent    decimal.Decimal
	GatewayPercent   decimal.Decimal
}

// SplitOutcome reports a completed split payment.
type SplitOutcome struct {
	WalletApplied    decimal.Decimal
	GatewayAmount    decimal.Decimal
	TransactionID    string
	GatewayReference string
}
