// Package payout moves withdrawable profit out of the ledger. A request is
// reserved in one transaction, dispatched to the external transfer service
// with no transaction open, and settled in a second transaction. The
// withdrawable balance is only debited once dispatch has succeeded.
package payout

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"asset-pool-ledger/internal/money"
)

// FailureReason classifies why a withdrawal did not complete
type FailureReason string

const (
	// Dispatch failures reported by the transfer service
	ReasonInsufficientFunds  FailureReason = "INSUFFICIENT_FUNDS"
	ReasonInvalidDestination FailureReason = "INVALID_DESTINATION"
	ReasonUnsupportedNetwork FailureReason = "UNSUPPORTED_NETWORK"
	ReasonTransferFailed     FailureReason = "TRANSFER_FAILED"

	// The transfer service did not answer in time; funds may or may not have moved
	ReasonTransferPending FailureReason = "TRANSFER_PENDING"

	// Rejections decided locally before anything is reserved
	ReasonBelowMinimum             FailureReason = "BELOW_MINIMUM"
	ReasonInsufficientWithdrawable FailureReason = "INSUFFICIENT_WITHDRAWABLE_BALANCE"
)

// DispatchRequest is what the transfer service is asked to send.
type DispatchRequest struct {
	WithdrawalID string      `json:"withdrawal_id"` // idempotency key
	Destination  string      `json:"destination"`
	Amount       money.Money `json:"amount"`
	Currency     string      `json:"currency"`
	Network      string      `json:"network"`
}

// Settlement confirms a transfer
type Settlement struct {
	TxHash    string    `json:"tx_hash"`
	Network   string    `json:"network"`
	SettledAt time.Time `json:"settled_at"`
}

// Dispatcher sends funds to an external address. Implementations report
// failures as *DispatchError; any other error is treated as a transfer
// failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*Settlement, error)
}

// DispatchError is a typed dispatch failure
type DispatchError struct {
	Reason  FailureReason
	Message string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// NewDispatchError creates a typed dispatch failure
func NewDispatchError(reason FailureReason, msg string, err error) *DispatchError {
	return &DispatchError{Reason: reason, Message: msg, Err: err}
}

// Classify maps any dispatch error onto a DispatchError.
func Classify(err error) *DispatchError {
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewDispatchError(ReasonTransferFailed, "dispatch timed out", err)
	}
	return NewDispatchError(ReasonTransferFailed, "transfer failed", err)
}

// OutcomeUnknown reports whether err leaves open whether the transfer went
// through: the request may have reached the transfer service before the
// deadline or cancellation cut the answer off.
func OutcomeUnknown(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Errors returned by the payout service
var (
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrAlreadyResolved    = errors.New("withdrawal already resolved")
	ErrReservationBroken  = errors.New("withdrawable balance below reserved amount")
)
