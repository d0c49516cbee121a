package api

import (
	"net/http"
	"strconv"
	"time"

	"asset-pool-ledger/internal/payout"

	"github.com/gin-gonic/gin"
)

// handleGetWallet returns the caller's wallet
func (s *Server) handleGetWallet(c *gin.Context) {
	wallet, err := s.ledger.Wallet(c.Request.Context(), getUserID(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, wallet)
}

// handleDeposit credits the caller's spendable balance
func (s *Server) handleDeposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	wallet, err := s.ledger.Deposit(c.Request.Context(), getUserID(c), req.Amount)
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, wallet)
}

// handleGetTransactions returns the caller's ledger entries, newest first
func (s *Server) handleGetTransactions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "limit must be an integer")
		return
	}

	txs, err := s.ledger.Transactions(c.Request.Context(), getUserID(c), limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, txs)
}

// handleGetUserContributions lists the caller's contributions
func (s *Server) handleGetUserContributions(c *gin.Context) {
	contributions, err := s.ledger.UserContributions(c.Request.Context(), getUserID(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, contributions)
}

// handleGetProfitShares summarizes profit paid to the caller
func (s *Server) handleGetProfitShares(c *gin.Context) {
	summary, err := s.ledger.UserProfitShares(c.Request.Context(), getUserID(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, summary)
}

// handleGetWithdrawals lists the caller's withdrawals
func (s *Server) handleGetWithdrawals(c *gin.Context) {
	withdrawals, err := s.payouts.History(c.Request.Context(), getUserID(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, withdrawals)
}

// handleWithdraw cashes out withdrawable profit
func (s *Server) handleWithdraw(c *gin.Context) {
	var req payout.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.UserID = getUserID(c)

	out, err := s.payouts.Withdraw(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if out.Reason == payout.ReasonTransferPending {
		c.JSON(http.StatusAccepted, gin.H{"success": false, "data": out})
		return
	}
	if !out.Success {
		rejectedResponse(c, out)
		return
	}
	successResponse(c, out)
}

// resolveRequest settles a held withdrawal: a tx hash completes it, anything
// else fails it and releases the reservation
type resolveRequest struct {
	TxHash        string               `json:"tx_hash"`
	FailureReason payout.FailureReason `json:"failure_reason"`
	Message       string               `json:"message"`
}

// handleResolveWithdrawal reconciles a PENDING withdrawal against the
// transfer service's records
func (s *Server) handleResolveWithdrawal(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var settlement *payout.Settlement
	var dispatchErr error
	if req.TxHash != "" {
		settlement = &payout.Settlement{TxHash: req.TxHash, SettledAt: time.Now().UTC()}
	} else {
		reason := req.FailureReason
		if reason == "" {
			reason = payout.ReasonTransferFailed
		}
		msg := req.Message
		if msg == "" {
			msg = "resolved as failed by operator"
		}
		dispatchErr = payout.NewDispatchError(reason, msg, nil)
	}

	out, err := s.payouts.Resolve(c.Request.Context(), c.Param("id"), settlement, dispatchErr)
	if err != nil {
		s.handleError(c, err)
		return
	}
	successResponse(c, out)
}
