package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind tags an activity event with the lead trader action it represents.
type EventKind string

const (
	EventOrderCreated   EventKind = "ORDER_CREATED"
	EventOrderFilled    EventKind = "ORDER_FILLED"
	EventOrderCancelled EventKind = "ORDER_CANCELLED"
	EventPositionClosed EventKind = "POSITION_CLOSED"
)

// Action is what the mirror does in response to an event.
type Action int

const (
	ActionIgnore Action = iota
	ActionOpen
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	default:
		return "ignore"
	}
}

// Action maps the event kind onto the mirror action. A new order or a trade
// opens, a position close closes, anything else is ignored.
func (k EventKind) Action() Action {
	switch k {
	case EventOrderCreated, EventOrderFilled:
		return ActionOpen
	case EventPositionClosed:
		return ActionClose
	default:
		return ActionIgnore
	}
}

// ParseEventKind accepts the stream's event names.
func ParseEventKind(s string) (EventKind, bool) {
	switch k := EventKind(s); k {
	case EventOrderCreated, EventOrderFilled, EventOrderCancelled, EventPositionClosed:
		return k, true
	default:
		return "", false
	}
}

// TradeEvent is a lead trader action normalised from either feed source.
type TradeEvent struct {
	Source    string // "activity", "positions" or "stream"
	Kind      EventKind
	Market    string // condition id
	Asset     string // outcome token id
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Outcome   string
	Title     string
	Timestamp time.Time
	Identity  string
}

// Validate rejects events the pipeline cannot act on.
func (e TradeEvent) Validate() error {
	if e.Identity == "" {
		return fmt.Errorf("%w: missing identity", ErrMalformedEvent)
	}
	if e.Market == "" {
		return fmt.Errorf("%w: missing market", ErrMalformedEvent)
	}
	if e.Kind.Action() != ActionOpen {
		return nil
	}
	if !e.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", ErrMalformedEvent, e.Side)
	}
	if !e.Price.IsPositive() {
		return fmt.Errorf("%w: price %s", ErrMalformedEvent, e.Price)
	}
	return nil
}
