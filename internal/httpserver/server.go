// Package httpserver exposes the account operations over a JSON HTTP API.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/marlinbank/accountd/pkg/account"
	"github.com/marlinbank/accountd/pkg/lock"
	"go.uber.org/zap"
)

var errInvalidServerConfig = errors.New("httpserver: invalid configuration")

// Config carries the listener settings for the HTTP façade.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// Server routes account and transaction requests to the domain layer.
type Server struct {
	logger      *zap.Logger
	coordinator *account.Coordinator
	accounts    *account.Service
	cfg         Config
}

// New wires the façade. All dependencies are required.
func New(cfg Config, logger *zap.Logger, coordinator *account.Coordinator, accounts *account.Service) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("%w: empty listen address", errInvalidServerConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: nil logger", errInvalidServerConfig)
	}
	if coordinator == nil {
		return nil, fmt.Errorf("%w: nil coordinator", errInvalidServerConfig)
	}
	if accounts == nil {
		return nil, fmt.Errorf("%w: nil account service", errInvalidServerConfig)
	}
	return &Server{
		logger:      logger,
		coordinator: coordinator,
		accounts:    accounts,
		cfg:         cfg,
	}, nil
}

// Router builds the gin engine with all routes registered.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(server.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: server.cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/account", server.handleCreateAccount)
	router.DELETE("/account", server.handleCloseAccount)
	router.GET("/account", server.handleListAccounts)
	router.POST("/transaction/use", server.handleUseBalance)
	router.POST("/transaction/cancel", server.handleCancelBalance)
	router.GET("/transaction/:transactionId", server.handleQueryTransaction)

	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) handleCreateAccount(ctx *gin.Context) {
	var request createAccountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	created, err := server.accounts.CreateAccount(ctx.Request.Context(), request.UserID, request.InitialBalance)
	if err != nil {
		server.respondError(ctx, "create_account", err)
		return
	}
	ctx.JSON(http.StatusOK, createAccountResponse{
		UserID:        created.UserID,
		AccountNumber: created.Number.String(),
		RegisteredAt:  created.RegisteredAt,
	})
}

func (server *Server) handleCloseAccount(ctx *gin.Context) {
	var request closeAccountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	number, err := account.NewAccountNumber(request.AccountNumber)
	if err != nil {
		server.respondError(ctx, "close_account", err)
		return
	}
	closed, err := server.accounts.CloseAccount(ctx.Request.Context(), request.UserID, number)
	if err != nil {
		server.respondError(ctx, "close_account", err)
		return
	}
	ctx.JSON(http.StatusOK, closeAccountResponse{
		UserID:         closed.UserID,
		AccountNumber:  closed.Number.String(),
		UnregisteredAt: closed.UnregisteredAt,
	})
}

func (server *Server) handleListAccounts(ctx *gin.Context) {
	userID, err := strconv.ParseInt(ctx.Query("user_id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "user_id must be an integer"))
		return
	}
	accounts, err := server.accounts.ListAccounts(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, "list_accounts", err)
		return
	}
	payload := make([]accountInfo, 0, len(accounts))
	for _, acct := range accounts {
		payload = append(payload, accountInfo{
			AccountNumber: acct.Number.String(),
			Balance:       acct.BalanceMinor,
		})
	}
	ctx.JSON(http.StatusOK, payload)
}

func (server *Server) handleUseBalance(ctx *gin.Context) {
	var request useBalanceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	number, err := account.NewAccountNumber(request.AccountNumber)
	if err != nil {
		server.respondError(ctx, "use_balance", err)
		return
	}
	transaction, err := server.coordinator.UseBalance(ctx.Request.Context(), request.UserID, number, request.Amount)
	if err != nil {
		server.respondError(ctx, "use_balance", err)
		return
	}
	ctx.JSON(http.StatusOK, transactionPayloadFrom(transaction))
}

func (server *Server) handleCancelBalance(ctx *gin.Context) {
	var request cancelBalanceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	transactionID, err := account.NewTransactionID(request.TransactionID)
	if err != nil {
		server.respondError(ctx, "cancel_balance", err)
		return
	}
	number, err := account.NewAccountNumber(request.AccountNumber)
	if err != nil {
		server.respondError(ctx, "cancel_balance", err)
		return
	}
	transaction, err := server.coordinator.CancelBalance(ctx.Request.Context(), transactionID, number, request.Amount)
	if err != nil {
		server.respondError(ctx, "cancel_balance", err)
		return
	}
	ctx.JSON(http.StatusOK, transactionPayloadFrom(transaction))
}

func (server *Server) handleQueryTransaction(ctx *gin.Context) {
	transactionID, err := account.NewTransactionID(ctx.Param("transactionId"))
	if err != nil {
		server.respondError(ctx, "query_transaction", err)
		return
	}
	transaction, err := server.coordinator.QueryTransaction(ctx.Request.Context(), transactionID)
	if err != nil {
		server.respondError(ctx, "query_transaction", err)
		return
	}
	ctx.JSON(http.StatusOK, queryTransactionResponse{
		AccountNumber: transaction.AccountNumber.String(),
		Type:          transaction.Type.String(),
		Result:        transaction.Result.String(),
		TransactionID: transaction.TransactionID.String(),
		Amount:        transaction.AmountMinor,
		TransactedAt:  transaction.TransactedAt,
	})
}

func (server *Server) respondError(ctx *gin.Context, operation string, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		server.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, account.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, account.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, account.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction_not_found"
	case errors.Is(err, account.ErrOwnerMismatch):
		return http.StatusBadRequest, "owner_mismatch"
	case errors.Is(err, account.ErrAccountClosed):
		return http.StatusBadRequest, "account_closed"
	case errors.Is(err, account.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, account.ErrInsufficientBalance):
		return http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, account.ErrTransactionAccountMismatch):
		return http.StatusBadRequest, "transaction_account_mismatch"
	case errors.Is(err, account.ErrCancelMustBeFull):
		return http.StatusBadRequest, "cancel_must_be_full"
	case errors.Is(err, account.ErrCancellationWindowExpired):
		return http.StatusBadRequest, "cancellation_window_expired"
	case errors.Is(err, account.ErrMaxAccountsPerUser):
		return http.StatusBadRequest, "max_accounts_per_user"
	case errors.Is(err, account.ErrBalanceNotEmpty):
		return http.StatusBadRequest, "balance_not_empty"
	case errors.Is(err, account.ErrInvalidAccountNumber):
		return http.StatusBadRequest, "invalid_account_number"
	case errors.Is(err, account.ErrInvalidTransactionID):
		return http.StatusBadRequest, "invalid_transaction_id"
	case errors.Is(err, lock.ErrAcquireTimeout):
		return http.StatusConflict, "account_busy"
	case errors.Is(err, lock.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "lock_backend_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
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

func transactionPayloadFrom(transaction account.Transaction) transactionResponse {
	return transactionResponse{
		AccountNumber: transaction.AccountNumber.String(),
		Result:        transaction.Result.String(),
		TransactionID: transaction.TransactionID.String(),
		Amount:        transaction.AmountMinor,
		TransactedAt:  transaction.TransactedAt,
	}
}

type createAccountRequest struct {
	UserID         int64 `json:"user_id"`
	InitialBalance int64 `json:"initial_balance"`
}

type createAccountResponse struct {
	UserID        int64     `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	RegisteredAt  time.Time `json:"registered_at"`
}

type closeAccountRequest struct {
	UserID        int64  `json:"user_id"`
	AccountNumber string `json:"account_number"`
}

type closeAccountResponse struct {
	UserID         int64      `json:"user_id"`
	AccountNumber  string     `json:"account_number"`
	UnregisteredAt *time.Time `json:"unregistered_at"`
}

type accountInfo struct {
	AccountNumber string `json:"account_number"`
	Balance       int64  `json:"balance"`
}

type useBalanceRequest struct {
	UserID        int64  `json:"user_id"`
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
}

type cancelBalanceRequest struct {
	TransactionID string `json:"transaction_id"`
	AccountNumber string `json:"account_number"`
	Amount        int64  `json:"amount"`
}

type transactionResponse struct {
	AccountNumber string    `json:"account_number"`
	Result        string    `json:"transaction_result"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	TransactedAt  time.Time `json:"transacted_at"`
}

type queryTransactionResponse struct {
	AccountNumber string    `json:"account_number"`
	Type          string    `json:"transaction_type"`
	Result        string    `json:"transaction_result"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	TransactedAt  time.Time `json:"transacted_at"`
}
