package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/money"
)

// Config holds payout rules
type Config struct {
	MinimumWithdrawal money.Money
	// Networks maps each supported currency to the network it settles on.
	Networks        map[string]string
	DispatchTimeout time.Duration
}

// DefaultConfig returns the standard payout rules
func DefaultConfig() Config {
	return Config{
		MinimumWithdrawal: money.MustParse("1.00"),
		Networks: map[string]string{
			"USDT": "POLYGON",
			"USDC": "POLYGON",
			"ETH":  "ETHEREUM",
		},
		DispatchTimeout: 60 * time.Second,
	}
}

// Publisher receives the final state of each withdrawal
type Publisher interface {
	PublishWithdrawal(withdrawalID, userID, amount, txHash, failureReason string)
	PublishError(source, message string, err error)
}

// WithdrawalRequest asks to cash out withdrawable profit
type WithdrawalRequest struct {
	UserID      string      `json:"user_id"`
	Amount      money.Money `json:"amount"`
	Currency    string      `json:"currency"`
	Destination string      `json:"destination"`
}

// WithdrawalOutcome reports what happened to a request
type WithdrawalOutcome struct {
	Success      bool                    `json:"success"`
	Reason       FailureReason           `json:"reason,omitempty"`
	Message      string                  `json:"message"`
	WithdrawalID string                  `json:"withdrawal_id,omitempty"`
	Status       ledger.WithdrawalStatus `json:"status,omitempty"`
	TxHash       string                  `json:"tx_hash,omitempty"`
	Amount       money.Money             `json:"amount"`
}

// Service runs the withdrawal flow
type Service struct {
	store      ledger.Store
	dispatcher Dispatcher
	events     Publisher
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates a payout Service. events may be nil.
func NewService(store ledger.Store, dispatcher Dispatcher, events Publisher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		events:     events,
		cfg:        cfg,
		logger:     logger.With().Str("component", "PayoutService").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Withdraw reserves, dispatches and settles one withdrawal.
func (s *Service) Withdraw(ctx context.Context, req WithdrawalRequest) (*WithdrawalOutcome, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Destination = strings.TrimSpace(req.Destination)
	out := &WithdrawalOutcome{Amount: req.Amount}

	// 1. Local validation
	network, ok := s.cfg.Networks[req.Currency]
	switch {
	case req.Amount.LessThan(s.cfg.MinimumWithdrawal):
		out.Reason = ReasonBelowMinimum
		out.Message = fmt.Sprintf("minimum withdrawal is %s", s.cfg.MinimumWithdrawal)
	case !ok:
		out.Reason = ReasonUnsupportedNetwork
		out.Message = fmt.Sprintf("currency %s is not supported", req.Currency)
	case req.Destination == "":
		out.Reason = ReasonInvalidDestination
		out.Message = "destination address is required"
	}
	if out.Reason != "" {
		s.logRejection(req, out)
		return out, nil
	}

	// 2. Reserve against the withdrawable balance net of pending requests
	w, err := s.reserve(ctx, req, network, out)
	if err != nil {
		return nil, err
	}
	if w == nil {
		s.logRejection(req, out)
		return out, nil
	}

	// 3. Dispatch with no transaction open
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	settlement, dispatchErr := s.dispatcher.Dispatch(dctx, DispatchRequest{
		WithdrawalID: w.ID,
		Destination:  w.Destination,
		Amount:       w.Amount,
		Currency:     w.Currency,
		Network:      w.Network,
	})
	cancel()

	// A timed-out transfer may still settle. Keep the reservation and leave
	// the request PENDING for Resolve rather than freeing the funds.
	if settlement == nil && dispatchErr != nil && OutcomeUnknown(dispatchErr) {
		return s.holdPending(w, dispatchErr), nil
	}

	// 4. Settle even if the caller has gone away; the transfer already happened
	out, err = s.Resolve(context.WithoutCancel(ctx), w.ID, settlement, dispatchErr)
	if err != nil && dispatchErr == nil && settlement != nil {
		s.logger.Error().Err(err).
			Str("withdrawal_id", w.ID).
			Str("tx_hash", settlement.TxHash).
			Msg("Transfer settled but withdrawal left PENDING")
		if s.events != nil {
			s.events.PublishError("payout",
				fmt.Sprintf("withdrawal %s settled as %s but was not recorded", w.ID, settlement.TxHash), err)
		}
	}
	return out, err
}

func (s *Service) reserve(ctx context.Context, req WithdrawalRequest, network string, out *WithdrawalOutcome) (*ledger.Withdrawal, error) {
	var reserved *ledger.Withdrawal
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		reserved = nil
		out.Reason, out.Message = "", ""

		wallet, err := tx.LockWallet(ctx, req.UserID)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %s", ledger.ErrWalletNotFound, req.UserID)
		}
		if err != nil {
			return err
		}
		pending, err := tx.PendingWithdrawalTotal(ctx, req.UserID)
		if err != nil {
			return err
		}

		available := wallet.WithdrawableBalance.Sub(pending)
		if available.LessThan(req.Amount) {
			out.Reason = ReasonInsufficientWithdrawable
			out.Message = fmt.Sprintf("insufficient withdrawable balance: %s available", money.Max(available, money.Zero))
			return nil
		}

		now := s.now()
		w := &ledger.Withdrawal{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Network:     network,
			Destination: req.Destination,
			Status:      ledger.WithdrawalStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		reserved = w
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Withdrawal reservation failed")
		return nil, err
	}
	return reserved, nil
}

func (s *Service) holdPending(w *ledger.Withdrawal, dispatchErr error) *WithdrawalOutcome {
	s.logger.Warn().Err(dispatchErr).
		Str("withdrawal_id", w.ID).
		Str("user_id", w.UserID).
		Str("amount", w.Amount.String()).
		Msg("Transfer outcome unknown, withdrawal held PENDING")
	if s.events != nil {
		s.events.PublishError("payout",
			fmt.Sprintf("withdrawal %s timed out in dispatch and needs reconciliation", w.ID), dispatchErr)
	}
	return &WithdrawalOutcome{
		Reason:       ReasonTransferPending,
		Message:      "transfer outcome unknown, withdrawal held for reconciliation",
		WithdrawalID: w.ID,
		Status:       ledger.WithdrawalStatusPending,
		Amount:       w.Amount,
	}
}

// Resolve applies a dispatch result to a PENDING withdrawal. It is the second
// half of Withdraw and is also used to reconcile requests whose settlement
// could not be recorded at the time.
func (s *Service) Resolve(ctx context.Context, withdrawalID string, settlement *Settlement, dispatchErr error) (*WithdrawalOutcome, error) {
	if dispatchErr == nil && (settlement == nil || settlement.TxHash == "") {
		dispatchErr = NewDispatchError(ReasonTransferFailed, "dispatcher returned no transaction id", nil)
	}

	var out *WithdrawalOutcome
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		w, err := tx.LockWithdrawal(ctx, withdrawalID)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrWithdrawalNotFound, withdrawalID)
		}
		if err != nil {
			return err
		}
		if w.Status != ledger.WithdrawalStatusPending {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, withdrawalID, w.Status)
		}

		now := s.now()
		w.UpdatedAt = now
		out = &WithdrawalOutcome{WithdrawalID: w.ID, Amount: w.Amount}

		if dispatchErr != nil {
			de := Classify(dispatchErr)
			w.Status = ledger.WithdrawalStatusFailed
			w.FailureReason = string(de.Reason)
			w.FailureDetail = de.Error()
			out.Status = w.Status
			out.Reason = de.Reason
			out.Message = de.Message
			return tx.UpdateWithdrawal(ctx, w)
		}

		wallet, err := tx.LockWallet(ctx, w.UserID)
		if err != nil {
			return fmt.Errorf("lock wallet %s: %w", w.UserID, err)
		}
		if wallet.WithdrawableBalance.LessThan(w.Amount) {
			return fmt.Errorf("%w: %s has %s, withdrawal %s needs %s",
				ErrReservationBroken, w.UserID, wallet.WithdrawableBalance, w.ID, w.Amount)
		}

		before := wallet.WithdrawableBalance
		wallet.WithdrawableBalance = wallet.WithdrawableBalance.Sub(w.Amount)
		wallet.TotalWithdrawn = wallet.TotalWithdrawn.Add(w.Amount)
		wallet.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, wallet); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &ledger.Transaction{
			ID:            uuid.New().String(),
			UserID:        w.UserID,
			Type:          ledger.TxTypeWithdrawal,
			Amount:        w.Amount,
			BalanceBefore: before,
			BalanceAfter:  wallet.WithdrawableBalance,
			ReferenceID:   w.ID,
			Description:   fmt.Sprintf("Withdrawal of %s %s to %s (tx %s)", w.Amount, w.Currency, w.Destination, settlement.TxHash),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		w.Status = ledger.WithdrawalStatusCompleted
		w.TxHash = settlement.TxHash
		w.CompletedAt = &now
		out.Success = true
		out.Status = w.Status
		out.TxHash = w.TxHash
		out.Message = "withdrawal completed"
		return tx.UpdateWithdrawal(ctx, w)
	})
	if err != nil {
		ev := s.logger.Error().Err(err).Str("withdrawal_id", withdrawalID)
		if settlement != nil {
			// Funds moved but the ledger does not know yet; the request stays
			// PENDING and keeps its reservation until reconciled.
			ev = ev.Str("tx_hash", settlement.TxHash)
		}
		ev.Msg("Withdrawal settlement could not be recorded")
		return nil, err
	}

	if out.Success {
		s.logger.Info().
			Str("withdrawal_id", out.WithdrawalID).
			Str("amount", out.Amount.String()).
			Str("tx_hash", out.TxHash).
			Msg("Withdrawal completed")
	} else {
		s.logger.Warn().
			Str("withdrawal_id", out.WithdrawalID).
			Str("reason", string(out.Reason)).
			Msg("Withdrawal failed")
	}
	s.publish(withdrawalID, out)
	return out, nil
}

// History lists a user's withdrawals newest first.
func (s *Service) History(ctx context.Context, userID string) ([]*ledger.Withdrawal, error) {
	return s.store.ListUserWithdrawals(ctx, userID)
}

func (s *Service) publish(withdrawalID string, out *WithdrawalOutcome) {
	if s.events == nil {
		return
	}
	w, err := s.store.GetWithdrawal(context.Background(), withdrawalID)
	if err != nil {
		return
	}
	s.events.PublishWithdrawal(w.ID, w.UserID, w.Amount.String(), w.TxHash, w.FailureReason)
}

func (s *Service) logRejection(req WithdrawalRequest, out *WithdrawalOutcome) {
	s.logger.Info().
		Str("user_id", req.UserID).
		Str("amount", req.Amount.String()).
		Str("currency", req.Currency).
		Str("reason", string(out.Reason)).
		Msg("Withdrawal rejected")
}
