package shop

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is an out-of-band notification published after a settlement commits.
// Observers must not assume they run before or inside the settlement.
type Event interface {
	EventName() string
}

const (
	EventPurchaseCreated = "purchase.created"
	EventGoodDepleted    = "good.depleted"
	EventRefundRequested = "refund.requested"
	EventRefundApproved  = "refund.approved"
	EventRefundDeclined  = "refund.declined"
)

// EventMeta is embedded in every event.
type EventMeta struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newMeta(at time.Time) EventMeta {
	return EventMeta{ID: uuid.NewString(), OccurredAt: at}
}

type PurchaseCreated struct {
	EventMeta
	Purchase Purchase `json:"purchase"`
}

func (PurchaseCreated) EventName() string { return EventPurchaseCreated }

// GoodDepleted fires when a purchase drove a good's stock to exactly zero.
type GoodDepleted struct {
	EventMeta
	GoodID     GoodID     `json:"good_id"`
	PurchaseID PurchaseID `json:"purchase_id"`
}

func (GoodDepleted) EventName() string { return EventGoodDepleted }

type RefundRequested struct {
	EventMeta
	Refund Refund `json:"refund"`
}

func (RefundRequested) EventName() string { return EventRefundRequested }

type RefundApproved struct {
	EventMeta
	Refund   Refund   `json:"refund"`
	Purchase Purchase `json:"purchase"`
	Credited int64    `json:"credited"`
}

func (RefundApproved) EventName() string { return EventRefundApproved }

type RefundDeclined struct {
	EventMeta
	Refund Refund `json:"refund"`
}

func (RefundDeclined) EventName() string { return EventRefundDeclined }

// Notifier receives events. Notify must not block the caller for long and
// has no way to fail a settlement that already committed.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

// Clock supplies the current time. Tests pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
