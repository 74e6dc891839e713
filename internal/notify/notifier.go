// Package notify pushes operator alerts about mirror activity to chat
// channels. Alerts are filtered by event name so operators only receive the
// kinds they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

// Event names accepted in notify.events.
const (
	EventMirrorOpened    = "mirror_opened"
	EventMirrorClosed    = "mirror_closed"
	EventMirrorFailed    = "mirror_failed"
	EventStreamExhausted = "stream_exhausted"
	EventReconciled      = "reconciled"
)

// Sender delivers one message to a chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans alerts out to every configured sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message for event if the event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	// One failing channel does not stop delivery to the others.
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// NotifyOutcome turns a mirror outcome into an alert. Outcomes with no
// matching event are ignored.
func (n *Notifier) NotifyOutcome(ctx context.Context, o domain.MirrorOutcome) error {
	event, title, message, ok := FormatOutcome(o)
	if !ok {
		return nil
	}
	return n.Notify(ctx, event, title, message)
}

// FormatOutcome renders an outcome as (event, title, message).
func FormatOutcome(o domain.MirrorOutcome) (event, title, message string, ok bool) {
	switch o.Kind {
	case domain.OutcomeOpened:
		return EventMirrorOpened, "Mirror opened",
			fmt.Sprintf("%s %s shares @ %s\nmarket: %s\norder: %s",
				o.Side, o.Shares.StringFixed(2), o.Price.String(), o.Market, o.OrderID), true
	case domain.OutcomeClosed:
		return EventMirrorClosed, "Mirror closed",
			fmt.Sprintf("%s shares @ %s\nP&L: %s\nmarket: %s",
				o.Shares.StringFixed(2), o.Price.String(), o.PnL.StringFixed(2), o.Market), true
	case domain.OutcomeFailed:
		return EventMirrorFailed, "Mirror order failed",
			fmt.Sprintf("%s on %s\n%s", o.Side, o.Market, o.Detail), true
	case domain.OutcomeReconcileRemove, domain.OutcomeReconcileAdopt:
		return EventReconciled, "Ledger reconciled",
			fmt.Sprintf("%s %s", strings.ReplaceAll(string(o.Kind), "_", " "), o.Market), true
	default:
		return "", "", "", false
	}
}
