package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/novap2p/novap2p/shared/models"
)

// Event types
const (
	UserCreated = "user.created"

	SessionSignedIn  = "session.signed_in"
	SessionSignedOut = "session.signed_out"

	AccountCreated = "account.created"
	AccountUpdated = "account.updated"
	AccountDeleted = "account.deleted"
)

// Stream names
const (
	IdentityEventsStream = "identity.events"
	AccountEventsStream  = "account.events"
)

// AccountsTable is the table name clients pass when subscribing to account
// changes; it maps onto AccountEventsStream.
const AccountsTable = "accounts"

// StreamForTable resolves a subscribable table name to its stream.
func StreamForTable(table string) (string, error) {
	switch table {
	case AccountsTable:
		return AccountEventsStream, nil
	default:
		return "", fmt.Errorf("no change stream for table %q", table)
	}
}

// Base event structure
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent builds an event with data encoded as its payload.
func NewEvent(eventType string, data any) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", e.Type, err)
	}
	return nil
}

// Identity events
type UserCreatedEvent struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type SessionChangedEvent struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// AccountChangedEvent carries the row before and after the change, the way
// a table change feed does. Old is nil on create, New is nil on delete.
type AccountChangedEvent struct {
	AccountID   string          `json:"account_id"`
	DepositorID string          `json:"depositor_id"`
	Old         *models.Account `json:"old,omitempty"`
	New         *models.Account `json:"new,omitempty"`
}

// Concerns reports whether the change touched a record assigned to depositorID.
func (e *AccountChangedEvent) Concerns(depositorID string) bool {
	if e.DepositorID == depositorID {
		return true
	}
	if e.Old != nil && e.Old.DepositorID == depositorID {
		return true
	}
	return e.New != nil && e.New.DepositorID == depositorID
}
