package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

// Run boots the HTTP API and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg Config, service *wallet.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wallet api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/wallets/:user_id", handler.handleWallet)
	api.POST("/wallets/:user_id/credits", handler.handleCredit)
	api.POST("/wallets/:user_id/status", handler.handleStatus)
	api.POST("/checkout/preview", handler.handlePreview)
	api.POST("/checkout/pay", handler.handlePay)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *wallet.Service
	cfg     Config
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := handler.bindUserID(ctx)
	if !ok {
		return
	}
	handler.respondWithWallet(ctx, userID)
}

func (handler *httpHandler) handleCredit(ctx *gin.Context) {
	userID, ok := handler.bindUserID(ctx)
	if !ok {
		return
	}
	var request creditRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	amount, err := decimal.NewFromString(request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "amount must be a decimal string"))
		return
	}
	source, err := wallet.ParseLotSource(request.Source)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_source", err.Error()))
		return
	}
	currency, err := wallet.NewCurrency(request.Currency)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_currency", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	reference := wallet.Reference{Kind: wallet.RefKindAdminAction, ID: request.ReferenceID}
	lot, err := handler.service.CreditLot(requestCtx, userID, source, amount, currency, request.ExpiresAtUnixUTC, reference)
	if err != nil {
		handler.respondDomainError(ctx, "credit failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"lot": lotPayloadFrom(lot)})
}

func (handler *httpHandler) handleStatus(ctx *gin.Context) {
	userID, ok := handler.bindUserID(ctx)
	if !ok {
		return
	}
	var request statusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	status, err := wallet.ParseAccountStatus(request.Status)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_status", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.SetAccountStatus(requestCtx, userID, status); err != nil {
		handler.respondDomainError(ctx, "status change failed", err)
		return
	}
	handler.respondWithWallet(ctx, userID)
}

func (handler *httpHandler) handlePreview(ctx *gin.Context) {
	var request previewRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := wallet.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user", err.Error()))
		return
	}
	total, err := decimal.NewFromString(request.Total)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "total must be a decimal string"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	preview, err := handler.service.PreviewSplit(requestCtx, userID, total)
	if err != nil {
		handler.respondDomainError(ctx, "preview failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"total":             preview.Total.String(),
		"wallet_applicable": preview.WalletApplicable.String(),
		"gateway_amount":    preview.GatewayAmount.String(),
		"wallet_percent":    preview.WalletPercent.String(),
		"gateway_percent":   preview.GatewayPercent.String(),
	})
}

func (handler *httpHandler) handlePay(ctx *gin.Context) {
	var request payRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := wallet.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user", err.Error()))
		return
	}
	total, err := decimal.NewFromString(request.Total)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", "total must be a decimal string"))
		return
	}
	currency, err := wallet.NewCurrency(request.Currency)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_currency", err.Error()))
		return
	}
	orderRef, err := wallet.NewOrderRef(request.OrderRef)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_order_ref", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	outcome, err := handler.service.ProcessSplitPayment(requestCtx, userID, total, currency, orderRef, request.PaymentMethodToken)
	if err != nil {
		handler.respondDomainError(ctx, "payment failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"wallet_applied":    outcome.WalletApplied.String(),
		"gateway_amount":    outcome.GatewayAmount.String(),
		"transaction_id":    outcome.TransactionID,
		"gateway_reference": outcome.GatewayReference,
	})
}

func (handler *httpHandler) bindUserID(ctx *gin.Context) (wallet.UserID, bool) {
	userID, err := wallet.NewUserID(ctx.Param("user_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user", err.Error()))
		return wallet.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) respondWithWallet(ctx *gin.Context, userID wallet.UserID) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	balance, err := handler.service.Balance(requestCtx, userID)
	if err != nil {
		handler.respondDomainError(ctx, "balance fetch failed", err)
		return
	}
	lots, err := handler.service.ListActiveLots(requestCtx, userID)
	if err != nil {
		handler.respondDomainError(ctx, "lot fetch failed", err)
		return
	}
	transactions, err := handler.service.ListTransactions(requestCtx, userID, 0, handler.cfg.HistoryLimit)
	if err != nil {
		handler.respondDomainError(ctx, "history fetch failed", err)
		return
	}
	activeLots := make([]lotPayload, 0, len(lots))
	for _, lot := range lots {
		activeLots = append(activeLots, lotPayloadFrom(lot))
	}
	history := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		history = append(history, transactionPayloadFrom(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"wallet": walletResponse{
			Balance: balancePayload{
				Available: balance.Available.String(),
				Frozen:    balance.Frozen.String(),
				Pending:   balance.Pending.String(),
			},
			Lots:         activeLots,
			Transactions: history,
		},
	})
}

// respondDomainError maps domain sentinels onto HTTP statuses.
func (handler *httpHandler) respondDomainError(ctx *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		ctx.JSON(http.StatusConflict, errorResponse("insufficient_funds", err.Error()))
	case errors.Is(err, wallet.ErrAccountInactive):
		ctx.JSON(http.StatusForbidden, errorResponse("account_inactive", err.Error()))
	case errors.Is(err, wallet.ErrInvalidState):
		ctx.JSON(http.StatusConflict, errorResponse("invalid_state", err.Error()))
	case errors.Is(err, wallet.ErrConcurrencyConflict):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, wallet.ErrGatewayFailed):
		ctx.JSON(http.StatusBadGateway, errorResponse("gateway_failed", err.Error()))
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidCurrency),
		errors.Is(err, wallet.ErrInvalidLotSource),
		errors.Is(err, wallet.ErrInvalidAccountStatus):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	case errors.Is(err, wallet.ErrUnknownTransaction), errors.Is(err, wallet.ErrUnknownAccount), errors.Is(err, wallet.ErrUnknownLot):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	default:
		handler.logger.Error(message, zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", message))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type creditRequest struct {
	Source           string `json:"source"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	ExpiresAtUnixUTC int64  `json:"expires_at_unix_utc"`
	ReferenceID      string `json:"reference_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type previewRequest struct {
	UserID string `json:"user_id"`
	Total  string `json:"total"`
}

type payRequest struct {
	UserID             string `json:"user_id"`
	Total              string `json:"total"`
	Currency           string `json:"currency"`
	OrderRef           string `json:"order_ref"`
	PaymentMethodToken string `json:"payment_method_token"`
}

type walletResponse struct {
	Balance      balancePayload       `json:"balance"`
	Lots         []lotPayload         `json:"lots"`
	Transactions []transactionPayload `json:"transactions"`
}

type balancePayload struct {
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Pending   string `json:"pending"`
}

type lotPayload struct {
	LotID            string `json:"lot_id"`
	Source           string `json:"source"`
	Amount           string `json:"amount"`
	Remaining        string `json:"remaining"`
	Currency         string `json:"currency"`
	AcquiredUnixUTC  int64  `json:"acquired_at_unix_utc"`
	ExpiresAtUnixUTC int64  `json:"expires_at_unix_utc"`
	Status           string `json:"status"`
}

type allocationPayload struct {
	LotID    string `json:"lot_id"`
	FreezeID string `json:"freeze_id,omitempty"`
	Source   string `json:"source"`
	Amount   string `json:"amount"`
}

type transactionPayload struct {
	TransactionID  string              `json:"transaction_id"`
	Direction      string              `json:"direction"`
	Amount         string              `json:"amount"`
	Currency       string              `json:"currency"`
	Type           string              `json:"type"`
	Status         string              `json:"status"`
	RefKind        string              `json:"ref_kind"`
	RefID          string              `json:"ref_id"`
	GatewayRef     string              `json:"gateway_ref,omitempty"`
	Allocations    []allocationPayload `json:"lot_allocation"`
	CreatedUnixUTC int64               `json:"created_unix_utc"`
}

func lotPayloadFrom(lot wallet.Lot) lotPayload {
	return lotPayload{
		LotID:            lot.LotID,
		Source:           lot.Source.String(),
		Amount:           lot.Amount.String(),
		Remaining:        lot.Remaining.String(),
		Currency:         lot.Currency,
		AcquiredUnixUTC:  lot.AcquiredAtUnixUTC,
		ExpiresAtUnixUTC: lot.ExpiresAtUnixUTC,
		Status:           lot.Status.String(),
	}
}

func transactionPayloadFrom(transaction wallet.Transaction) transactionPayload {
	allocations := make([]allocationPayload, 0, len(transaction.Allocations))
	for _, allocation := range transaction.Allocations {
		allocations = append(allocations, allocationPayload{
			LotID:    allocation.LotID,
			FreezeID: allocation.FreezeID,
			Source:   allocation.Source.String(),
			Amount:   allocation.Amount.String(),
		})
	}
	return transactionPayload{
		TransactionID:  transaction.TransactionID,
		Direction:      transaction.Direction.String(),
		Amount:         transaction.Amount.String(),
		Currency:       transaction.Currency,
		Type:           transaction.Type.String(),
		Status:         transaction.Status.String(),
		RefKind:        transaction.Ref.Kind.String(),
		RefID:          transaction.Ref.ID,
		GatewayRef:     transaction.GatewayRef,
		Allocations:    allocations,
		CreatedUnixUTC: transaction.CreatedUnixUTC,
	}
}
