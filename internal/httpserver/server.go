// Package httpserver exposes the settlement engine as a JSON API. The engine
// owns all money movement; handlers only translate between HTTP and the
// domain contracts.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mverkhovyn/wagerhouse/pkg/wager"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidStake      = "invalid_stake"
	errorCodeInvalidPayout     = "invalid_payout"
	errorCodeInvalidRequest    = "invalid_request"
	errorCodeInsufficientFunds = "insufficient_funds"
	errorCodeWalletNotFound    = "wallet_not_found"
	errorCodeBetNotFound       = "bet_not_found"
	errorCodeBetSettled        = "bet_already_settled"
	errorCodeUnknownGame       = "unknown_game"
	errorCodeForbidden         = "forbidden"
	errorCodeInternal          = "internal"

	defaultRequestTimeout = 5 * time.Second
)

// Server wires the engine into a gin router.
type Server struct {
	logger  *zap.Logger
	service *wager.Service
	cfg     Config
}

// New constructs a Server.
func New(logger *zap.Logger, service *wager.Service, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SeedBalance <= 0 {
		cfg.SeedBalance = wager.DefaultSeedBalance
	}
	return &Server{logger: logger, service: service, cfg: cfg}
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.requestLogger())
	if len(server.cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = server.cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, authorizationHeader)
		router.Use(cors.New(corsConfig))
	}

	router.GET("/healthz", server.handleHealth)

	v1 := router.Group("/v1", server.authMiddleware())
	v1.POST("/wallets/:userId/seed", server.handleSeedWallet)
	v1.GET("/wallets/:userId", server.handleGetWallet)
	v1.GET("/wallets/:userId/transactions", server.handleListTransactions)
	v1.GET("/wallets/:userId/bets", server.handleListBets)
	v1.POST("/bets", server.handlePlaceBet)
	v1.GET("/bets/:betId", server.handleGetBet)
	v1.POST("/bets/:betId/settle", server.handleSettleBet)
	v1.POST("/bets/:betId/resolve", server.handleResolveBet)
	return router
}

func (server *Server) requestLogger() gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		started := time.Now()
		ginContext.Next()
		server.logger.Info("http request",
			zap.String("method", ginContext.Request.Method),
			zap.String("path", ginContext.FullPath()),
			zap.Int("status", ginContext.Writer.Status()),
			zap.Duration("elapsed", time.Since(started)),
		)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type seedWalletRequest struct {
	InitialBalance int64  `json:"initialBalance"`
	Note           string `json:"note"`
}

type placeBetRequest struct {
	UserID  string          `json:"userId"`
	Game    string          `json:"game"`
	Stake   int64           `json:"stake"`
	Details json.RawMessage `json:"details"`
}

type settleBetRequest struct {
	Status  string          `json:"status"`
	Payout  int64           `json:"payout"`
	Details json.RawMessage `json:"details"`
}

type walletResponse struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type transactionResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reference    string    `json:"reference"`
	Note         string    `json:"note"`
	CreatedAt    time.Time `json:"createdAt"`
}

type transactionPageResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"nextCursor,omitempty"`
}

type betResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Game      string          `json:"game"`
	Stake     int64           `json:"stake"`
	Status    string          `json:"status"`
	Payout    int64           `json:"payout"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"createdAt"`
	SettledAt *time.Time      `json:"settledAt,omitempty"`
}

type betPageResponse struct {
	Bets       []betResponse `json:"bets"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

type outcomeResponse struct {
	Status  string          `json:"status"`
	Payout  int64           `json:"payout"`
	Details json.RawMessage `json:"details"`
}

func (server *Server) handleHealth(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleSeedWallet(ginContext *gin.Context) {
	pathUserID := ginContext.Param("userId")
	if err := requireUser(ginContext, pathUserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return
	}
	var request seedWalletRequest
	if ginContext.Request.ContentLength > 0 {
		if err := ginContext.ShouldBindJSON(&request); err != nil {
			abortWithError(ginContext, http.StatusBadRequest, errorCodeInvalidRequest, err.Error())
			return
		}
	}
	// Only the onboarding collaborator may pick a balance. A player's own
	// token always seeds the configured amount, whatever the body says.
	if !isOperator(ginContext) || request.InitialBalance == 0 {
		request.InitialBalance = server.cfg.SeedBalance
	}
	userID, err := wager.NewUserID(pathUserID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	initialBalance, err := wager.NewAmount(request.InitialBalance)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	if err := server.service.SeedWallet(ctx, userID, initialBalance, request.Note); err != nil {
		server.renderError(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (server *Server) handleGetWallet(ginContext *gin.Context) {
	pathUserID := ginContext.Param("userId")
	if err := requireUser(ginContext, pathUserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return
	}
	userID, err := wager.NewUserID(pathUserID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	wallet, err := server.service.Balance(ctx, userID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, walletResponse{
		UserID:    wallet.UserID,
		Balance:   wallet.Balance,
		UpdatedAt: wallet.UpdatedAt,
	})
}

func (server *Server) handleListTransactions(ginContext *gin.Context) {
	pathUserID := ginContext.Param("userId")
	if err := requireUser(ginContext, pathUserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return
	}
	userID, err := wager.NewUserID(pathUserID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	page, err := server.service.ListTransactions(ctx, userID, ginContext.Query("cursor"), queryInt(ginContext, "pageSize"))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	response := transactionPageResponse{
		Transactions: make([]transactionResponse, 0, len(page.Transactions)),
		NextCursor:   page.NextCursor,
	}
	for _, transaction := range page.Transactions {
		response.Transactions = append(response.Transactions, transactionResponse{
			ID:           transaction.TransactionID,
			Type:         transaction.Type.String(),
			Amount:       transaction.Amount,
			BalanceAfter: transaction.BalanceAfter,
			Reference:    transaction.Reference,
			Note:         transaction.Note,
			CreatedAt:    transaction.CreatedAt,
		})
	}
	ginContext.JSON(http.StatusOK, response)
}

func (server *Server) handleListBets(ginContext *gin.Context) {
	pathUserID := ginContext.Param("userId")
	if err := requireUser(ginContext, pathUserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return
	}
	userID, err := wager.NewUserID(pathUserID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	page, err := server.service.ListBets(ctx, userID, ginContext.Query("cursor"), queryInt(ginContext, "pageSize"))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	response := betPageResponse{
		Bets:       make([]betResponse, 0, len(page.Bets)),
		NextCursor: page.NextCursor,
	}
	for _, bet := range page.Bets {
		response.Bets = append(response.Bets, mapBetResponse(bet))
	}
	ginContext.JSON(http.StatusOK, response)
}

func (server *Server) handlePlaceBet(ginContext *gin.Context) {
	var request placeBetRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, errorCodeInvalidRequest, err.Error())
		return
	}
	if err := requireUser(ginContext, request.UserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return
	}
	userID, err := wager.NewUserID(request.UserID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	game, err := wager.NewGame(request.Game)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	stake, err := wager.NewStake(request.Stake)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	details, err := wager.NewDetailsJSON(string(request.Details))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	bet, err := server.service.PlaceBet(ctx, userID, game, stake, details)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusCreated, mapBetResponse(bet))
}

func (server *Server) handleGetBet(ginContext *gin.Context) {
	betID, err := wager.NewBetID(ginContext.Param("betId"))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	bet, err := server.service.Bet(ctx, betID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	if err := requireUser(ginContext, bet.UserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return
	}
	ginContext.JSON(http.StatusOK, mapBetResponse(bet))
}

func (server *Server) handleSettleBet(ginContext *gin.Context) {
	if err := requireOperator(ginContext); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "settlement requires an operator token")
		return
	}
	betID, err := wager.NewBetID(ginContext.Param("betId"))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	var request settleBetRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		abortWithError(ginContext, http.StatusBadRequest, errorCodeInvalidRequest, err.Error())
		return
	}
	status, err := wager.ParseBetStatus(request.Status)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	payout, err := wager.NewPayout(request.Payout)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	details, err := wager.NewDetailsJSON(string(request.Details))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	if err := server.service.Settle(ctx, betID, status, payout, details); err != nil {
		server.renderError(ginContext, err)
		return
	}
	ginContext.Status(http.StatusNoContent)
}

func (server *Server) handleResolveBet(ginContext *gin.Context) {
	betID, err := wager.NewBetID(ginContext.Param("betId"))
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	if err := server.guardBetOwner(ginContext, betID); err != nil {
		return
	}
	outcome, err := server.service.Resolve(ctx, betID)
	if err != nil {
		server.renderError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, outcomeResponse{
		Status:  outcome.Status.String(),
		Payout:  outcome.Payout,
		Details: json.RawMessage(outcome.Details.String()),
	})
}

// guardBetOwner loads the bet and rejects callers that do not own it. The
// response is already written on error.
func (server *Server) guardBetOwner(ginContext *gin.Context, betID wager.BetID) error {
	ctx, cancel := server.requestContext(ginContext)
	defer cancel()
	bet, err := server.service.Bet(ctx, betID)
	if err != nil {
		server.renderError(ginContext, err)
		return err
	}
	if err := requireUser(ginContext, bet.UserID); err != nil {
		abortWithError(ginContext, http.StatusForbidden, errorCodeForbidden, "token does not match user")
		return err
	}
	return nil
}

func (server *Server) requestContext(ginContext *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ginContext.Request.Context(), server.cfg.RequestTimeout)
}

func (server *Server) renderError(ginContext *gin.Context, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		server.logger.Error("request failed", zap.Error(err))
	}
	abortWithError(ginContext, status, code, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, wager.ErrInvalidStake):
		return http.StatusBadRequest, errorCodeInvalidStake
	case errors.Is(err, wager.ErrInvalidPayout):
		return http.StatusBadRequest, errorCodeInvalidPayout
	case errors.Is(err, wager.ErrInvalidUserID),
		errors.Is(err, wager.ErrInvalidBetID),
		errors.Is(err, wager.ErrInvalidGame),
		errors.Is(err, wager.ErrInvalidAmount),
		errors.Is(err, wager.ErrInvalidBetStatus),
		errors.Is(err, wager.ErrInvalidDetailsJSON),
		errors.Is(err, wager.ErrInvalidGameParams),
		errors.Is(err, wager.ErrInvalidCursor):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, wager.ErrInsufficientFunds):
		return http.StatusPaymentRequired, errorCodeInsufficientFunds
	case errors.Is(err, wager.ErrWalletNotFound):
		return http.StatusNotFound, errorCodeWalletNotFound
	case errors.Is(err, wager.ErrBetNotFound):
		return http.StatusNotFound, errorCodeBetNotFound
	case errors.Is(err, wager.ErrBetSettled):
		return http.StatusConflict, errorCodeBetSettled
	case errors.Is(err, wager.ErrUnknownProvider):
		return http.StatusBadRequest, errorCodeUnknownGame
	default:
		return http.StatusInternalServerError, errorCodeInternal
	}
}

func abortWithError(ginContext *gin.Context, status int, code string, message string) {
	ginContext.AbortWithStatusJSON(status, errorResponse{Error: code, Message: message})
}

func mapBetResponse(bet wager.Bet) betResponse {
	return betResponse{
		ID:        bet.BetID,
		UserID:    bet.UserID,
		Game:      bet.Game,
		Stake:     bet.Stake,
		Status:    bet.Status.String(),
		Payout:    bet.Payout,
		Details:   json.RawMessage(bet.RedactedDetails()),
		CreatedAt: bet.CreatedAt,
		SettledAt: bet.SettledAt,
	}
}

func queryInt(ginContext *gin.Context, name string) int {
	raw := ginContext.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
