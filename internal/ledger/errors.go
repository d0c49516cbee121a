package ledger

import (
	"errors"
	"fmt"
)

// Errors returned by the ledger
var (
	ErrNotFound       = errors.New("record not found")
	ErrAssetNotFound  = errors.New("asset not found")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrConflict       = errors.New("transaction conflict, retry the operation")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidState   = errors.New("invalid state transition")
)

// RejectReason is a machine-readable code for a validation rejection.
// Rejections never mutate state and are reported through outcomes, not
// errors.
type RejectReason string

const (
	ReasonNone                RejectReason = ""
	ReasonMinimumNotMet       RejectReason = "MINIMUM_CONTRIBUTION_NOT_MET"
	ReasonNotCollecting       RejectReason = "ASSET_NOT_COLLECTING"
	ReasonInsufficientBalance RejectReason = "INSUFFICIENT_BALANCE"
	ReasonFullyFunded         RejectReason = "ALREADY_FULLY_FUNDED"
	ReasonNotPayable          RejectReason = "ASSET_NOT_PAYABLE"
	ReasonInvalidAmount       RejectReason = "INVALID_AMOUNT"
	ReasonNotAvailable        RejectReason = "ASSET_NOT_AVAILABLE"
	ReasonAlreadyContributed  RejectReason = "ALREADY_CONTRIBUTED"
	ReasonAlreadyPurchased    RejectReason = "ALREADY_PURCHASED"
	ReasonInvalidTransition   RejectReason = "INVALID_STATUS_TRANSITION"
)

// notFound maps a store ErrNotFound onto the entity-specific sentinel.
func notFound(err error, sentinel error, id string) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
