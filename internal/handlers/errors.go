package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/pricing"
	"poolmarket/internal/services"
	"poolmarket/internal/session"
	"poolmarket/internal/settlement"
)

type errorStatus struct {
	err    error
	status int
}

var errorStatuses = []errorStatus{
	{pricing.ErrMalformedAmount, http.StatusBadRequest},
	{pricing.ErrInvalidAmount, http.StatusBadRequest},
	{pricing.ErrUnknownOutcome, http.StatusBadRequest},
	{pricing.ErrUnknownSide, http.StatusBadRequest},
	{blockchain.ErrInvalidWallet, http.StatusBadRequest},
	{blockchain.ErrInvalidSignature, http.StatusBadRequest},
	{blockchain.ErrTxMismatch, http.StatusBadRequest},
	{services.ErrOutcomeMismatch, http.StatusBadRequest},
	{services.ErrTxRequired, http.StatusBadRequest},
	{settlement.ErrInvalidDuration, http.StatusBadRequest},
	{settlement.ErrUnknownOutcome, http.StatusBadRequest},

	{services.ErrUnauthorized, http.StatusUnauthorized},
	{services.ErrInvalidNonce, http.StatusUnauthorized},
	{session.ErrNotFound, http.StatusUnauthorized},

	{services.ErrForbidden, http.StatusForbidden},

	{services.ErrMarketNotFound, http.StatusNotFound},
	{services.ErrCandidateNotFound, http.StatusNotFound},
	{services.ErrUserNotFound, http.StatusNotFound},
	{services.ErrNoContract, http.StatusNotFound},

	{services.ErrMarketClosed, http.StatusConflict},
	{services.ErrTxAlreadyUsed, http.StatusConflict},
	{blockchain.ErrTxPending, http.StatusConflict},
	{settlement.ErrAlreadyOpen, http.StatusConflict},
	{settlement.ErrAlreadyResolved, http.StatusConflict},
	{settlement.ErrNotStarted, http.StatusConflict},
	{settlement.ErrBettingOpen, http.StatusConflict},

	{blockchain.ErrNoOperatorKey, http.StatusServiceUnavailable},
}

// respondError writes err as a JSON error response. Contract reverts and
// wrong-chain sessions get their own bodies so the client can react.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var revertErr *blockchain.RevertError
	if errors.As(err, &revertErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Contract Revert: " + revertErr.ShortMessage,
		})
		return
	}

	var chainErr *services.WrongChainError
	if errors.As(err, &chainErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":    chainErr.Error(),
			"action":   "switch_network",
			"chain_id": chainErr.Expected,
		})
		return
	}

	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			c.JSON(es.status, gin.H{"error": err.Error()})
			return
		}
	}

	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
