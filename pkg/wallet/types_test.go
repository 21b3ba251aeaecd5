package wallet

import (
	"errors"
	"testing"
)

func TestNewUserIDTrimsWhitespace(test *testing.T) {
	test.Parallel()
	userID, err := NewUserID("  user-42  ")
	if err != nil {
		test.Fatalf("new user id: %v", err)
	}
	if userID.String() != "user-42" {
		test.Fatalf("expected trimmed id, got %q", userID.String())
	}
}

func TestNewUserIDRejectsEmpty(test *testing.T) {
	test.Parallel()
	if _, err := NewUserID("   "); !errors.Is(err, ErrInvalidUserID) {
		test.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestNewOrderRefRejectsEmpty(test *testing.T) {
	test.Parallel()
	if _, err := NewOrderRef(""); !errors.Is(err, ErrInvalidOrderRef) {
		test.Fatalf("expected ErrInvalidOrderRef, got %v", err)
	}
}

func TestNewCurrencyNormalizesCase(test *testing.T) {
	test.Parallel()
	currency, err := NewCurrency(" usd ")
	if err != nil {
		test.Fatalf("new currency: %v", err)
	}
	if currency.String() != "USD" {
		test.Fatalf("expected uppercase code, got %q", currency.String())
	}
}

func TestNewCurrencyRejectsMalformedCodes(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", "US", "USDT", "U$D", "123"} {
		if _, err := NewCurrency(raw); !errors.Is(err, ErrInvalidCurrency) {
			test.Fatalf("expected ErrInvalidCurrency for %q, got %v", raw, err)
		}
	}
}

func TestParseEnumerations(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		parse   func(string) error
		valid   []string
		invalid string
		wantErr error
	}{
		{
			name:    "account status",
			parse:   func(raw string) error { _, err := ParseAccountStatus(raw); return err },
			valid:   []string{"active", "locked", "suspended"},
			invalid: "closed",
			wantErr: ErrInvalidAccountStatus,
		},
		{
			name:    "lot source",
			parse:   func(raw string) error { _, err := ParseLotSource(raw); return err },
			valid:   []string{"gift_card", "refund", "adjustment", "promo", "credit_card", "loyalty_point"},
			invalid: "cashback",
			wantErr: ErrInvalidLotSource,
		},
		{
			name:    "lot status",
			parse:   func(raw string) error { _, err := ParseLotStatus(raw); return err },
			valid:   []string{"active", "expired", "locked"},
			invalid: "spent",
			wantErr: ErrInvalidLotStatus,
		},
		{
			name:    "freeze status",
			parse:   func(raw string) error { _, err := ParseFreezeStatus(raw); return err },
			valid:   []string{"frozen", "consumed", "released"},
			invalid: "pending",
			wantErr: ErrInvalidFreezeStatus,
		},
		{
			name:    "direction",
			parse:   func(raw string) error { _, err := ParseDirection(raw); return err },
			valid:   []string{"CR", "DR"},
			invalid: "cr",
			wantErr: ErrInvalidDirection,
		},
		{
			name:    "transaction type",
			parse:   func(raw string) error { _, err := ParseTxnType(raw); return err },
			valid:   []string{"redeem", "purchase", "refund_credit", "admin_adjustment"},
			invalid: "transfer",
			wantErr: ErrInvalidTxnType,
		},
		{
			name:    "transaction status",
			parse:   func(raw string) error { _, err := ParseTxnStatus(raw); return err },
			valid:   []string{"pending", "completed", "failed", "reversed"},
			invalid: "voided",
			wantErr: ErrInvalidTxnStatus,
		},
		{
			name:    "reference kind",
			parse:   func(raw string) error { _, err := ParseRefKind(raw); return err },
			valid:   []string{"order", "payment", "admin_action"},
			invalid: "invoice",
			wantErr: ErrInvalidRefKind,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			for _, raw := range testCase.valid {
				if err := testCase.parse(raw); err != nil {
					test.Fatalf("expected %q to parse, got %v", raw, err)
				}
			}
			if err := testCase.parse(testCase.invalid); !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v for %q, got %v", testCase.wantErr, testCase.invalid, err)
			}
		})
	}
}

func TestFreezeStatusTerminal(test *testing.T) {
	test.Parallel()
	if FreezeStatusFrozen.Terminal() {
		test.Fatalf("frozen must not be terminal")
	}
	if !FreezeStatusConsumed.Terminal() || !FreezeStatusReleased.Terminal() {
		test.Fatalf("consumed and released must be terminal")
	}
}

func TestTxnStatusTerminal(test *testing.T) {
	test.Parallel()
	if TxnStatusPending.Terminal() || TxnStatusCompleted.Terminal() {
		test.Fatalf("pending and completed must not be terminal")
	}
	if !TxnStatusFailed.Terminal() || !TxnStatusReversed.Terminal() {
		test.Fatalf("failed and reversed must be terminal")
	}
}
