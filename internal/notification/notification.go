package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/events"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyPoolFunded       NotificationType = "pool_funded"
	NotifyWithdrawalFailed NotificationType = "withdrawal_failed"
	NotifyAuditFailed      NotificationType = "audit_failed"
	NotifyError            NotificationType = "error"
)

// Notification represents an operator alert
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	AssetID   string
	UserID    string
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans alerts out to every enabled provider
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		logger:    logger.With().Str("component", "Notifications").Logger(),
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends a notification to all enabled providers and joins their errors
func (m *Manager) Send(ctx context.Context, notification *Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}

	var errs []error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(ctx, notification); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe turns ledger events that need an operator into alerts
func (m *Manager) Subscribe(bus *events.EventBus) {
	for _, t := range []events.EventType{
		events.EventPoolFunded,
		events.EventWithdrawalFailed,
		events.EventAuditFailed,
		events.EventError,
	} {
		bus.Subscribe(t, m.handle)
	}
}

func (m *Manager) handle(event events.Event) {
	n := FromEvent(event)
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Send(ctx, n); err != nil {
		m.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to deliver notification")
	}
}

// FromEvent renders an event as a notification, or nil when it is not alertable
func FromEvent(event events.Event) *Notification {
	str := func(key string) string {
		v, _ := event.Data[key].(string)
		return v
	}

	n := &Notification{
		AssetID:   str("asset_id"),
		UserID:    str("user_id"),
		Timestamp: event.Timestamp,
	}
	switch event.Type {
	case events.EventPoolFunded:
		n.Type = NotifyPoolFunded
		n.Title = "Pool funded"
		n.Message = fmt.Sprintf("Asset %s collected %s and is ready for purchase", n.AssetID, str("collected"))
	case events.EventWithdrawalFailed:
		n.Type = NotifyWithdrawalFailed
		n.Title = "Withdrawal failed"
		n.Message = fmt.Sprintf("Withdrawal %s of %s for %s failed: %s",
			str("withdrawal_id"), str("amount"), n.UserID, str("reason"))
	case events.EventAuditFailed:
		violations, _ := event.Data["violations"].([]string)
		n.Type = NotifyAuditFailed
		n.Title = "Ledger audit failed"
		n.Message = fmt.Sprintf("Asset %s violates %d invariant(s):\n- %s",
			n.AssetID, len(violations), strings.Join(violations, "\n- "))
	case events.EventError:
		n.Type = NotifyError
		n.Title = "Ledger error in " + str("source")
		n.Message = str("message")
		if e := str("error"); e != "" {
			n.Message += ": " + e
		}
	default:
		return nil
	}
	return n
}
