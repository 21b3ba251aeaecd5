// Package gateway implements wallet.GatewayClient against an HTTP card
// processor. The processor is expected to dedupe charges on the
// Idempotency-Key header.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

const (
	chargesPath           = "/v1/charges"
	headerIdempotencyKey  = "Idempotency-Key"
	defaultRequestTimeout = 10 * time.Second
)

// Config holds processor connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Validate fills defaults and rejects unusable values.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("gateway base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return nil
}

// Client calls the card processor over HTTP.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New returns a Client for the configured processor.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

type chargePayload struct {
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	OrderRef           string `json:"order_ref"`
	PaymentMethodToken string `json:"payment_method_token"`
}

type chargeResult struct {
	Reference string `json:"reference"`
	Message   string `json:"message"`
	Code      string `json:"code"`
}

// Charge submits the card leg of a split payment. Declines surface as
// *wallet.GatewayError; transport failures are returned as-is so callers can
// distinguish them.
func (client *Client) Charge(ctx context.Context, request wallet.ChargeRequest) (wallet.ChargeReceipt, error) {
	payload := chargePayload{
		Amount:             request.Amount.String(),
		Currency:           request.Currency,
		OrderRef:           request.OrderRef,
		PaymentMethodToken: request.PaymentMethodToken,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return wallet.ChargeReceipt{}, fmt.Errorf("encode charge: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.cfg.BaseURL+chargesPath, bytes.NewReader(encoded))
	if err != nil {
		return wallet.ChargeReceipt{}, fmt.Errorf("build charge request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set(headerIdempotencyKey, request.IdempotencyKey)
	if client.cfg.APIKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+client.cfg.APIKey)
	}

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return wallet.ChargeReceipt{}, fmt.Errorf("charge request: %w", err)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	var result chargeResult
	if err := json.NewDecoder(httpResponse.Body).Decode(&result); err != nil {
		return wallet.ChargeReceipt{}, fmt.Errorf("decode charge response (status %d): %w", httpResponse.StatusCode, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		client.logger.Warn("gateway declined charge",
			zap.String("order_ref", request.OrderRef),
			zap.Int("status", httpResponse.StatusCode),
			zap.String("code", result.Code),
		)
		return wallet.ChargeReceipt{}, &wallet.GatewayError{Code: result.Code, Message: result.Message}
	}
	return wallet.ChargeReceipt{Reference: result.Reference, Message: result.Message}, nil
}
