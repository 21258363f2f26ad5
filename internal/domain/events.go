package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain notification recorded by an aggregate and dispatched
// by the unit of work that persists it.
type Event interface {
	EventName() string
}

// RenewalChanged is emitted when a subscription's renewal date moves,
// either through an owner edit or the renewal sweeper. The occurrence
// regenerator consumes it to rebuild pending reminder occurrences.
type RenewalChanged struct {
	SubscriptionID uuid.UUID
	NewRenewalDate time.Time
}

// EventName implements Event
func (RenewalChanged) EventName() string { return "subscription.renewal_changed" }
