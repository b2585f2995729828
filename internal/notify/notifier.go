// Package notify delivers operator alerts about chain executions to one or
// more channels (Discord, Telegram). Notifications can be filtered by event
// type so operators receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Event types understood by the notifier's filter.
const (
	EventChainExecuted = "chain_executed"
	EventChainFailed   = "chain_failed"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is in
// the allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	// If specific events were configured, filter.
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// NotifyExecution formats exec and forwards it under the event matching its
// status. Fully filled chains are EventChainExecuted, everything else is
// EventChainFailed.
func (n *Notifier) NotifyExecution(ctx context.Context, exec domain.ChainExecution) error {
	event, title, message := FormatExecution(exec)
	return n.Notify(ctx, event, title, message)
}

// FormatExecution renders the event type, title and body for exec.
func FormatExecution(exec domain.ChainExecution) (event, title, message string) {
	event = EventChainFailed
	if exec.Status == domain.ExecutionFilled {
		event = EventChainExecuted
	}
	title = fmt.Sprintf("Chain %s %s", shortID(exec.ChainID), exec.Status)

	var b strings.Builder
	fmt.Fprintf(&b, "expected %s (%s%%), fee %s%%, legs %d/%d\n",
		exec.ExpectedProfit.String(), exec.ExpectedPercent.StringFixed(2),
		exec.FeePercent.String(), exec.FilledLegs(), len(exec.Fills))
	for _, f := range exec.Fills {
		if f.Success {
			fmt.Fprintf(&b, "%s %s %s @ %s\n", f.Direction, f.Symbol, f.BaseQty.String(), f.Price.String())
		} else {
			fmt.Fprintf(&b, "%s %s failed: %s\n", f.Direction, f.Symbol, f.Error)
		}
	}
	message = strings.TrimRight(b.String(), "\n")
	return event, title, message
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
