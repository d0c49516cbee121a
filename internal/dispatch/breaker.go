package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/payout"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Dispatch halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive transfer failures before tripping
	Cooldown         time.Duration `json:"cooldown"`          // Time spent open before a probe is allowed
}

// DefaultBreakerConfig returns safe defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         time.Minute,
	}
}

// ErrCircuitOpen is wrapped by the error returned while the breaker is open
var ErrCircuitOpen = errors.New("dispatch circuit open")

// Breaker stops calling a failing transfer service. Only infrastructure
// failures count; a rejected destination says nothing about the service.
type Breaker struct {
	next       payout.Dispatcher
	config     BreakerConfig
	state      BreakerState
	failures   int
	lastTrip   time.Time
	tripReason string
	probing    bool
	mu         sync.Mutex
	logger     zerolog.Logger
	now        func() time.Time
}

// NewBreaker wraps next with a circuit breaker
func NewBreaker(next payout.Dispatcher, cfg BreakerConfig, logger zerolog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{
		next:   next,
		config: cfg,
		state:  StateClosed,
		logger: logger.With().Str("component", "DispatchBreaker").Logger(),
		now:    time.Now,
	}
}

// Dispatch forwards to the wrapped dispatcher unless the breaker is open
func (b *Breaker) Dispatch(ctx context.Context, req payout.DispatchRequest) (*payout.Settlement, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}

	settlement, err := b.next.Dispatch(ctx, req)
	b.record(err)
	return settlement, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.now().Sub(b.lastTrip)
		if elapsed < b.config.Cooldown {
			remaining := b.config.Cooldown - elapsed
			return payout.NewDispatchError(payout.ReasonTransferFailed,
				fmt.Sprintf("cooldown remaining: %v (reason: %s)", remaining.Round(time.Second), b.tripReason),
				ErrCircuitOpen)
		}
		// Cooldown passed, let one probe through
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return payout.NewDispatchError(payout.ReasonTransferFailed, "recovery probe in flight", ErrCircuitOpen)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.probing
	b.probing = false

	if err == nil || payout.Classify(err).Reason != payout.ReasonTransferFailed {
		if b.state != StateClosed {
			b.logger.Info().Msg("Dispatch circuit closed")
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if wasProbe || b.failures >= b.config.FailureThreshold {
		b.trip(err.Error())
	}
}

// trip opens the circuit breaker
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.lastTrip = b.now()
	b.tripReason = reason
	b.logger.Warn().
		Int("consecutive_failures", b.failures).
		Str("reason", reason).
		Msg("Dispatch circuit opened")
}

// ForceReset manually closes the circuit breaker
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.tripReason = ""
}

// GetState returns current breaker state
func (b *Breaker) GetState() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetStats returns current statistics
func (b *Breaker) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"state":                string(b.state),
		"consecutive_failures": b.failures,
		"trip_reason":          b.tripReason,
		"last_trip_time":       b.lastTrip,
	}
}
