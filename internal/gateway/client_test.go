package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

func TestChargeSuccess(t *testing.T) {
	t.Parallel()
	var captured struct {
		idempotencyKey string
		authorization  string
		payload        chargePayload
	}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		captured.idempotencyKey = request.Header.Get(headerIdempotencyKey)
		captured.authorization = request.Header.Get("Authorization")
		if err := json.NewDecoder(request.Body).Decode(&captured.payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(chargeResult{Reference: "ch-777", Message: "approved"})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, APIKey: "sk-test"}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	receipt, err := client.Charge(context.Background(), wallet.ChargeRequest{
		Amount:             decimal.NewFromInt(20),
		Currency:           "USD",
		OrderRef:           "order-77",
		PaymentMethodToken: "tok-77",
		IdempotencyKey:     "charge:abc",
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if receipt.Reference != "ch-777" {
		t.Fatalf("expected reference ch-777, got %q", receipt.Reference)
	}
	if captured.idempotencyKey != "charge:abc" {
		t.Fatalf("expected idempotency key forwarded, got %q", captured.idempotencyKey)
	}
	if captured.authorization != "Bearer sk-test" {
		t.Fatalf("expected bearer auth, got %q", captured.authorization)
	}
	if captured.payload.Amount != "20" || captured.payload.Currency != "USD" {
		t.Fatalf("unexpected payload: %+v", captured.payload)
	}
}

func TestChargeDeclineReturnsGatewayError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(writer).Encode(chargeResult{Code: "51", Message: "insufficient card funds"})
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Charge(context.Background(), wallet.ChargeRequest{
		Amount:   decimal.NewFromInt(20),
		Currency: "USD",
		OrderRef: "order-declined",
	})
	var gatewayError *wallet.GatewayError
	if !errors.As(err, &gatewayError) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gatewayError.Code != "51" {
		t.Fatalf("expected decline code 51, got %q", gatewayError.Code)
	}
}

func TestConfigRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}
