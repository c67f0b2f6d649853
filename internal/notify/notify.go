// Package notify defines the bot-event output port spec.md §2 names (C16) and a single
// concrete implementation: a zerolog-backed dry-run dispatcher. Real Telegram message
// formatting/dispatch is explicitly out of scope (spec.md §2's Non-goals) — the port exists so
// a future collaborator can drop in a live implementation without touching any caller.
//
// Grounded on the teacher's internal/telemetry zerolog call-chain style.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EventKind names the bot lifecycle/decision events a Notifier can be asked to deliver.
type EventKind string

const (
	EventBotStarted    EventKind = "bot_started"
	EventBotPaused     EventKind = "bot_paused"
	EventBotStopped    EventKind = "bot_stopped"
	EventBotError      EventKind = "bot_error"
	EventSignalFlip    EventKind = "signal_flip"
	EventNewsBlackout  EventKind = "news_blackout"
	EventLicenseDenied EventKind = "license_denied"
)

// BotEvent is the payload delivered to a Notifier. Fields beyond BotID/Kind/Message are
// optional context a formatter may choose to render.
type BotEvent struct {
	BotID     string
	Kind      EventKind
	Message   string
	Timestamp time.Time
	Meta      map[string]string
}

// Notifier is the output port spec.md §2 names for bot-event delivery.
type Notifier interface {
	Notify(ctx context.Context, event BotEvent) error
}

// DryRunNotifier logs every event at info level instead of dispatching it anywhere. It is the
// only Notifier this repo ships; production deployments wire a real implementation behind the
// same interface.
type DryRunNotifier struct {
	log zerolog.Logger
}

func NewDryRunNotifier(log zerolog.Logger) *DryRunNotifier {
	return &DryRunNotifier{log: log.With().Str("sub", "notify").Logger()}
}

func (n *DryRunNotifier) Notify(ctx context.Context, event BotEvent) error {
	evt := n.log.Info().
		Str("bot_id", event.BotID).
		Str("kind", string(event.Kind)).
		Str("message", event.Message)
	for k, v := range event.Meta {
		evt = evt.Str("meta."+k, v)
	}
	evt.Msg("dry_run_notify")
	return nil
}

// MultiNotifier fans an event out to every wrapped Notifier, collecting the first error but
// still attempting delivery to the rest.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Notify(ctx context.Context, event BotEvent) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
