package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asset-pool-ledger/internal/events"
)

type recordingNotifier struct {
	mu      sync.Mutex
	name    string
	enabled bool
	err     error
	sent    []*Notification
}

func (r *recordingNotifier) Send(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Name() string    { return r.name }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// ============================================================================
// Manager
// ============================================================================

func TestManager_SendSkipsDisabled(t *testing.T) {
	m := NewManager(zerolog.Nop())
	on := &recordingNotifier{name: "on", enabled: true}
	off := &recordingNotifier{name: "off"}
	m.AddNotifier(on)
	m.AddNotifier(off)

	if err := m.Send(context.Background(), &Notification{Title: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if on.count() != 1 || off.count() != 0 {
		t.Errorf("Expected 1/0 deliveries, got %d/%d", on.count(), off.count())
	}
	if on.sent[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
}

func TestManager_SendJoinsErrors(t *testing.T) {
	m := NewManager(zerolog.Nop())
	boom := errors.New("boom")
	m.AddNotifier(&recordingNotifier{name: "a", enabled: true, err: boom})
	m.AddNotifier(&recordingNotifier{name: "b", enabled: true})

	err := m.Send(context.Background(), &Notification{Title: "hello"})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected joined error to wrap boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "a:") {
		t.Errorf("Expected provider name in error, got %q", err.Error())
	}
}

func TestManager_SubscribeDeliversAlerts(t *testing.T) {
	bus := events.NewEventBus()
	m := NewManager(zerolog.Nop())
	rec := &recordingNotifier{name: "rec", enabled: true}
	m.AddNotifier(rec)
	m.Subscribe(bus)

	bus.PublishAuditFailed("asset-1", []string{"collected exceeds goal"})
	bus.PublishDeposit("user-a", "10.00")

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if rec.count() != 1 {
		t.Fatalf("Expected 1 alert, got %d", rec.count())
	}
	if rec.sent[0].Type != NotifyAuditFailed {
		t.Errorf("Expected %s, got %s", NotifyAuditFailed, rec.sent[0].Type)
	}
}

// ============================================================================
// FromEvent
// ============================================================================

func TestFromEvent(t *testing.T) {
	tests := []struct {
		name     string
		event    events.Event
		wantType NotificationType
		contains string
	}{
		{
			name:     "pool funded",
			event:    events.Event{Type: events.EventPoolFunded, Data: map[string]interface{}{"asset_id": "a1", "collected": "6.00"}},
			wantType: NotifyPoolFunded,
			contains: "6.00",
		},
		{
			name: "withdrawal failed",
			event: events.Event{Type: events.EventWithdrawalFailed, Data: map[string]interface{}{
				"withdrawal_id": "w1", "user_id": "u1", "amount": "4.00", "reason": "INSUFFICIENT_FUNDS",
			}},
			wantType: NotifyWithdrawalFailed,
			contains: "INSUFFICIENT_FUNDS",
		},
		{
			name: "audit failed",
			event: events.Event{Type: events.EventAuditFailed, Data: map[string]interface{}{
				"asset_id": "a1", "violations": []string{"x", "y"},
			}},
			wantType: NotifyAuditFailed,
			contains: "2 invariant",
		},
		{
			name: "error",
			event: events.Event{Type: events.EventError, Data: map[string]interface{}{
				"source": "payout", "message": "resolve failed", "error": "timeout",
			}},
			wantType: NotifyError,
			contains: "resolve failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := FromEvent(tt.event)
			if n == nil {
				t.Fatal("Expected a notification")
			}
			if n.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, n.Type)
			}
			if !strings.Contains(n.Message, tt.contains) {
				t.Errorf("Expected message to contain %q, got %q", tt.contains, n.Message)
			}
		})
	}

	if n := FromEvent(events.Event{Type: events.EventDeposit}); n != nil {
		t.Errorf("Expected deposits to be ignored, got %+v", n)
	}
}

// ============================================================================
// Providers
// ============================================================================

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier(TelegramConfig{BotToken: "tok", ChatID: "42", Enabled: true})
	n.apiBase = srv.URL

	if err := n.Send(context.Background(), &Notification{Title: "Ledger audit failed", Message: "details"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/bottok/sendMessage" {
		t.Errorf("Expected path /bottok/sendMessage, got %s", path)
	}
	if got["chat_id"] != "42" {
		t.Errorf("Expected chat_id 42, got %v", got["chat_id"])
	}
}

func TestTelegramNotifier_DisabledWithoutToken(t *testing.T) {
	n := NewTelegramNotifier(TelegramConfig{ChatID: "42", Enabled: true})
	if n.IsEnabled() {
		t.Error("Expected notifier without token to be disabled")
	}
	if err := n.Send(context.Background(), &Notification{}); err != nil {
		t.Errorf("Expected disabled send to be a no-op, got %v", err)
	}
}

func TestDiscordNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
	err := n.Send(context.Background(), &Notification{Type: NotifyAuditFailed, Title: "t", Message: "m", AssetID: "a1", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	embeds, _ := got["embeds"].([]interface{})
	if len(embeds) != 1 {
		t.Fatalf("Expected 1 embed, got %v", got)
	}
	embed := embeds[0].(map[string]interface{})
	if embed["color"] != float64(0xFF0000) {
		t.Errorf("Expected red embed, got %v", embed["color"])
	}
}

func TestDiscordNotifier_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL, Enabled: true})
	if err := n.Send(context.Background(), &Notification{Title: "t"}); err == nil {
		t.Error("Expected error on 400 response")
	}
}
