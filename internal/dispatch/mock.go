package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"asset-pool-ledger/internal/payout"
)

// MockDispatcher settles transfers locally for development and tests.
// Repeated withdrawal IDs return the first settlement.
type MockDispatcher struct {
	mu       sync.Mutex
	settled  map[string]*payout.Settlement
	failures map[string]*payout.DispatchError // destination -> forced failure
	latency  time.Duration
}

// NewMockDispatcher creates a new mock dispatcher
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{
		settled:  make(map[string]*payout.Settlement),
		failures: make(map[string]*payout.DispatchError),
	}
}

// FailDestination makes every transfer to destination fail with reason
func (m *MockDispatcher) FailDestination(destination string, reason payout.FailureReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[destination] = payout.NewDispatchError(reason, "simulated failure", nil)
}

// SetLatency delays every dispatch
func (m *MockDispatcher) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Dispatch validates the destination and returns a deterministic tx hash
func (m *MockDispatcher) Dispatch(ctx context.Context, req payout.DispatchRequest) (*payout.Settlement, error) {
	if err := ValidateAddress(req.Network, req.Destination); err != nil {
		return nil, err
	}

	m.mu.Lock()
	latency := m.latency
	forced := m.failures[req.Destination]
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if forced != nil {
		return nil, forced
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settled[req.WithdrawalID]; ok {
		return s, nil
	}
	sum := sha256.Sum256([]byte(req.WithdrawalID + "|" + req.Destination + "|" + req.Amount.String()))
	s := &payout.Settlement{
		TxHash:    "0x" + hex.EncodeToString(sum[:]),
		Network:   req.Network,
		SettledAt: time.Now().UTC(),
	}
	m.settled[req.WithdrawalID] = s
	return s, nil
}

// Count returns how many distinct withdrawals have settled
func (m *MockDispatcher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.settled)
}
