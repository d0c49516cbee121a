package events

import (
	"sync"
	"time"
)

// EventType represents different types of ledger events
type EventType string

const (
	EventContributionApplied EventType = "CONTRIBUTION_APPLIED"
	EventPoolFunded          EventType = "POOL_FUNDED"
	EventPoolAvailable       EventType = "POOL_AVAILABLE"
	EventProfitDistributed   EventType = "PROFIT_DISTRIBUTED"
	EventAssetPurchased      EventType = "ASSET_PURCHASED"
	EventDeposit             EventType = "DEPOSIT"
	EventWithdrawalCompleted EventType = "WITHDRAWAL_COMPLETED"
	EventWithdrawalFailed    EventType = "WITHDRAWAL_FAILED"
	EventAuditFailed         EventType = "AUDIT_FAILED"
	EventError               EventType = "ERROR"
)

// Event represents a ledger event. Amounts in Data are fixed-point strings.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Events are only
// published after the transaction that produced them has committed.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking the ledger
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishContributionApplied publishes a committed contribution
func (eb *EventBus) PublishContributionApplied(assetID, userID, applied, excess, remaining string) {
	eb.Publish(Event{
		Type: EventContributionApplied,
		Data: map[string]interface{}{
			"asset_id":         assetID,
			"user_id":          userID,
			"applied_amount":   applied,
			"excess_amount":    excess,
			"remaining_needed": remaining,
		},
	})
}

// PublishPoolFunded publishes the COLLECTING -> PURCHASED transition
func (eb *EventBus) PublishPoolFunded(assetID, collected string, contributors int) {
	eb.Publish(Event{
		Type: EventPoolFunded,
		Data: map[string]interface{}{
			"asset_id":     assetID,
			"collected":    collected,
			"contributors": contributors,
		},
	})
}

// PublishPoolAvailable publishes an asset opened for resale
func (eb *EventBus) PublishPoolAvailable(assetID, totalExcess string, contributors int) {
	eb.Publish(Event{
		Type: EventPoolAvailable,
		Data: map[string]interface{}{
			"asset_id":     assetID,
			"total_excess": totalExcess,
			"contributors": contributors,
		},
	})
}

// PublishProfitDistributed publishes one sale event's split
func (eb *EventBus) PublishProfitDistributed(assetID, revenue, platform, contributor string, shares int) {
	eb.Publish(Event{
		Type: EventProfitDistributed,
		Data: map[string]interface{}{
			"asset_id":           assetID,
			"total_revenue":      revenue,
			"platform_profit":    platform,
			"contributor_profit": contributor,
			"distributed_count":  shares,
		},
	})
}

// PublishAssetPurchased publishes a resale
func (eb *EventBus) PublishAssetPurchased(assetID, userID, price string) {
	eb.Publish(Event{
		Type: EventAssetPurchased,
		Data: map[string]interface{}{
			"asset_id": assetID,
			"user_id":  userID,
			"price":    price,
		},
	})
}

// PublishDeposit publishes a credited deposit
func (eb *EventBus) PublishDeposit(userID, amount string) {
	eb.Publish(Event{
		Type: EventDeposit,
		Data: map[string]interface{}{
			"user_id": userID,
			"amount":  amount,
		},
	})
}

// PublishWithdrawal publishes the final state of a payout request
func (eb *EventBus) PublishWithdrawal(withdrawalID, userID, amount, txHash, failureReason string) {
	eventType := EventWithdrawalCompleted
	data := map[string]interface{}{
		"withdrawal_id": withdrawalID,
		"user_id":       userID,
		"amount":        amount,
	}
	if failureReason != "" {
		eventType = EventWithdrawalFailed
		data["reason"] = failureReason
	} else {
		data["tx_hash"] = txHash
	}
	eb.Publish(Event{Type: eventType, Data: data})
}

// PublishAuditFailed publishes invariant violations found on a pool
func (eb *EventBus) PublishAuditFailed(assetID string, violations []string) {
	eb.Publish(Event{
		Type: EventAuditFailed,
		Data: map[string]interface{}{
			"asset_id":   assetID,
			"violations": violations,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
