package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalises the free-form side strings used by the APIs.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrMalformedEvent, s)
	}
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign is +1 for Buy and -1 for Sell.
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// OrderType selects market or limit execution.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForceIOC is the only time-in-force the mirror uses.
const TimeInForceIOC = "IOC"

// OrderRequest is a mirror order ready for dispatch.
type OrderRequest struct {
	Market         string
	Asset          string
	Side           Side
	Size           decimal.Decimal
	Type           OrderType
	Price          decimal.Decimal // only meaningful for limit orders
	IdempotencyKey string
}

// GuardKey is the in-flight guard key for the request.
func (r OrderRequest) GuardKey() string {
	return r.Market + "|" + string(r.Side)
}

// OrderResult wraps the API response after order submission.
type OrderResult struct {
	OrderID  string
	Status   string
	AvgPrice decimal.Decimal // zero when the venue does not report a fill price
}

// FailureKind classifies a dispatch failure.
type FailureKind string

const (
	FailureAlreadyInFlight FailureKind = "already_in_flight"
	FailureNetwork         FailureKind = "network"
	FailureRejected        FailureKind = "rejected"
	FailureInvalidRequest  FailureKind = "invalid_request"
)

// DispatchError is returned by the order dispatcher for every failed submission.
type DispatchError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *DispatchError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error { return e.Err }

// idempotencyNamespace scopes mirror idempotency keys.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/alanyoungcy/polymirror/orders"))

// IdempotencyKey derives a deterministic client order id from an event
// identity, so a re-delivered event maps onto the same key.
func IdempotencyKey(identity string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(identity)).String()
}
