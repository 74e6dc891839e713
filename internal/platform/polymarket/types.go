package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// flexInt64 unmarshals from a JSON number or a numeric string, since the data
// API and the stream disagree on how timestamps are encoded.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt64(n)
		return nil
	}
	// Some payloads send fractional seconds.
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexInt64: %q: %w", s, err)
	}
	*f = flexInt64(v)
	return nil
}

// unixTime interprets ts as seconds, or milliseconds when it is too large to
// be a plausible second count.
// unixSeconds accepts seconds or milliseconds and returns seconds.
func unixSeconds(ts int64) int64 {
	if ts > 1e12 {
		return ts / 1000
	}
	return ts
}

// tradeIdentity is the dedup key shared by the activity endpoint and the
// stream for one on-chain trade.
func tradeIdentity(txHash string, ts int64) string {
	return fmt.Sprintf("%s-%d", txHash, unixSeconds(ts))
}

func unixTime(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}

// firstNonEmpty returns the first non-blank value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// firstNonZero returns the first non-zero decimal.
func firstNonZero(vals ...decimal.Decimal) decimal.Decimal {
	for _, v := range vals {
		if !v.IsZero() {
			return v
		}
	}
	return decimal.Zero
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIActivity is one record from the data API activity endpoint.
type APIActivity struct {
	TransactionHash string          `json:"transactionHash"`
	Timestamp       flexInt64       `json:"timestamp"`
	ConditionID     string          `json:"conditionId"`
	Market          string          `json:"market"`
	Type            string          `json:"type"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	UsdcSize        decimal.Decimal `json:"usdcSize"`
	Asset           string          `json:"asset"`
	Outcome         string          `json:"outcome"`
	Title           string          `json:"title"`
}

// Time returns the activity timestamp.
func (a *APIActivity) Time() time.Time {
	return unixTime(int64(a.Timestamp))
}

// ToTradeEvent normalises the record into an open event. The identity is the
// transaction hash joined with the timestamp.
func (a *APIActivity) ToTradeEvent() (domain.TradeEvent, error) {
	side, err := domain.ParseSide(a.Side)
	if err != nil {
		return domain.TradeEvent{}, err
	}
	if a.TransactionHash == "" {
		return domain.TradeEvent{}, fmt.Errorf("%w: activity without transaction hash", domain.ErrMalformedEvent)
	}
	return domain.TradeEvent{
		Source:    "activity",
		Kind:      domain.EventOrderFilled,
		Market:    firstNonEmpty(a.ConditionID, a.Market),
		Asset:     a.Asset,
		Side:      side,
		Price:     a.Price,
		Size:      a.Size,
		Outcome:   a.Outcome,
		Title:     a.Title,
		Timestamp: a.Time(),
		Identity:  tradeIdentity(a.TransactionHash, int64(a.Timestamp)),
	}, nil
}

// APIPosition is one record from the data API positions endpoint.
type APIPosition struct {
	ConditionID string          `json:"conditionId"`
	Asset       string          `json:"asset"`
	Size        decimal.Decimal `json:"size"`
	Side        string          `json:"side"`
	AvgPrice    decimal.Decimal `json:"avgPrice"`
	CurPrice    decimal.Decimal `json:"curPrice"`
	Outcome     string          `json:"outcome"`
	Title       string          `json:"title"`
}

// PositionSide returns the holding side; holdings without one are long.
func (p *APIPosition) PositionSide() domain.Side {
	if side, err := domain.ParseSide(p.Side); err == nil {
		return side
	}
	return domain.SideBuy
}

// ToLeadHolding converts the record for position diffing.
func (p *APIPosition) ToLeadHolding() domain.LeadHolding {
	return domain.LeadHolding{
		Side:     p.PositionSide(),
		Size:     p.Size,
		Asset:    p.Asset,
		Outcome:  p.Outcome,
		AvgPrice: firstNonZero(p.AvgPrice, p.CurPrice),
	}
}

// ToFollowerPosition converts the record into an authoritative follower
// position. EntryPrice is zero when the API reports no price.
func (p *APIPosition) ToFollowerPosition(fetchedAt time.Time) domain.FollowerPosition {
	return domain.FollowerPosition{
		Market:     p.ConditionID,
		Asset:      p.Asset,
		Outcome:    p.Outcome,
		Side:       p.PositionSide(),
		Shares:     p.Size,
		EntryPrice: firstNonZero(p.AvgPrice, p.CurPrice),
		OpenedAt:   fetchedAt,
	}
}

// APIBalance is the balance endpoint response. Older deployments answer with
// "value" instead of "balance".
type APIBalance struct {
	Balance decimal.Decimal `json:"balance"`
	Value   decimal.Decimal `json:"value"`
}

// Amount returns whichever field was populated.
func (b APIBalance) Amount() decimal.Decimal {
	return firstNonZero(b.Balance, b.Value)
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderRequest is the body of POST /order.
type APIOrderRequest struct {
	Market        string `json:"market"`
	AssetID       string `json:"asset_id,omitempty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Size          string `json:"size"`
	Price         string `json:"price,omitempty"`
	TimeInForce   string `json:"timeInForce"`
	ClientOrderID string `json:"clientOrderId"`
}

// NewAPIOrderRequest builds the wire body for req.
func NewAPIOrderRequest(req domain.OrderRequest) APIOrderRequest {
	out := APIOrderRequest{
		Market:        req.Market,
		AssetID:       req.Asset,
		Side:          string(req.Side),
		Type:          string(req.Type),
		Size:          req.Size.String(),
		TimeInForce:   domain.TimeInForceIOC,
		ClientOrderID: req.IdempotencyKey,
	}
	if req.Type == domain.OrderTypeLimit {
		out.Price = req.Price.String()
	}
	return out
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	OrderID  string          `json:"orderId"`
	OrderID2 string          `json:"orderID"`
	Success  *bool           `json:"success"`
	ErrorMsg string          `json:"errorMsg"`
	Status   string          `json:"status"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
}

// ToDomainOrderResult converts the API response.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	return domain.OrderResult{
		OrderID:  firstNonEmpty(r.OrderID, r.OrderID2),
		Status:   r.Status,
		AvgPrice: r.AvgPrice,
	}
}

// Rejected reports whether a 2xx response still declined the order.
func (r *APIOrderResult) Rejected() bool {
	if r.Success != nil && !*r.Success {
		return true
	}
	return firstNonEmpty(r.OrderID, r.OrderID2) == ""
}

// --------------------------------------------------------------------------
// Stream DTOs
// --------------------------------------------------------------------------

// StreamSubscribe is the subscription command sent after connecting.
type StreamSubscribe struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Auth    *StreamAuth `json:"auth,omitempty"`
	Markets []string    `json:"markets"`
}

// StreamAuth carries API credentials for the authenticated user channel.
type StreamAuth struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// StreamFrame is a pushed user-channel message. Field names differ between
// message versions, so several aliases are decoded.
type StreamFrame struct {
	Event     string `json:"event"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`
	Address   string `json:"address"`

	ID       string    `json:"id"`
	OrderID  string    `json:"order_id"`
	OrderID2 string    `json:"orderId"`
	Sequence flexInt64 `json:"seq"`

	TransactionHash string `json:"transactionHash"`
	TxHash          string `json:"tx_hash"`

	Market      string `json:"market"`
	MarketID    string `json:"market_id"`
	ConditionID string `json:"conditionId"`
	AssetID     string `json:"asset_id"`
	Asset       string `json:"asset"`

	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Size      decimal.Decimal `json:"size"`
	FillSize  decimal.Decimal `json:"fill_size"`
	Outcome   string          `json:"outcome"`
	Timestamp flexInt64       `json:"timestamp"`
}

// ParseStreamFrame decodes raw. ok is false for frames that are not JSON
// objects (pings, plain-text acknowledgements).
func ParseStreamFrame(raw []byte) (StreamFrame, bool) {
	var f StreamFrame
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return f, false
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, false
	}
	return f, true
}

// Kind returns the declared event kind.
func (f *StreamFrame) Kind() (domain.EventKind, bool) {
	return domain.ParseEventKind(strings.ToUpper(firstNonEmpty(f.Event, f.Type, f.EventType)))
}

// IsFrom reports whether the frame's actor is address.
func (f *StreamFrame) IsFrom(address string) bool {
	return f.Address != "" && strings.EqualFold(f.Address, address)
}

// identity builds the composite dedup key. A transaction hash with timestamp
// matches the activity endpoint's identity for the same trade.
func (f *StreamFrame) identity(kind domain.EventKind) string {
	var base string
	switch tx := firstNonEmpty(f.TransactionHash, f.TxHash); {
	case tx != "" && f.Timestamp != 0:
		base = tradeIdentity(tx, int64(f.Timestamp))
	case firstNonEmpty(f.OrderID, f.OrderID2, f.ID) != "":
		base = "order:" + firstNonEmpty(f.OrderID, f.OrderID2, f.ID)
	case f.Sequence != 0:
		base = fmt.Sprintf("seq:%d", int64(f.Sequence))
	default:
		return ""
	}
	if kind.Action() == domain.ActionClose {
		return "close:" + base
	}
	return base
}

// ToTradeEvent normalises the frame. Open events must carry a side; close
// events only need a market.
func (f *StreamFrame) ToTradeEvent(now time.Time) (domain.TradeEvent, error) {
	kind, ok := f.Kind()
	if !ok {
		return domain.TradeEvent{}, fmt.Errorf("%w: unknown stream event %q", domain.ErrMalformedEvent, firstNonEmpty(f.Event, f.Type, f.EventType))
	}

	ev := domain.TradeEvent{
		Source:   "stream",
		Kind:     kind,
		Market:   firstNonEmpty(f.Market, f.MarketID, f.ConditionID),
		Asset:    firstNonEmpty(f.AssetID, f.Asset),
		Price:    firstNonZero(f.FillPrice, f.Price),
		Size:     firstNonZero(f.FillSize, f.Size),
		Outcome:  f.Outcome,
		Identity: f.identity(kind),
	}
	if f.Side != "" {
		side, err := domain.ParseSide(f.Side)
		if err != nil {
			return domain.TradeEvent{}, err
		}
		ev.Side = side
	}
	if f.Timestamp != 0 {
		ev.Timestamp = unixTime(int64(f.Timestamp))
	} else {
		ev.Timestamp = now
	}
	if err := ev.Validate(); err != nil {
		return domain.TradeEvent{}, err
	}
	return ev, nil
}
