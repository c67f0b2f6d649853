package botruntime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the bot runtime's finite-state machine state, per spec.md §4.13.
type Status string

const (
	StatusStopped Status = "STOPPED"
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusError   Status = "ERROR"
)

// Runtime mirrors both Bot.status and BotRuntime.status per spec.md §4.13; TransitionID is a
// fresh uuid stamped on every transition so callers can correlate a transition with its audit
// log entry and license-check trace.
type Runtime struct {
	BotID        string
	Status       Status
	Reason       string
	TransitionID string
	UpdatedAt    time.Time
}

// LicenseChecker gates STOPPED->RUNNING transitions per spec.md §4.15; C15 implements this.
type LicenseChecker interface {
	CheckBotStart(ctx context.Context, botID string) error
}

var validTransitions = map[Status]map[Status]bool{
	StatusStopped: {StatusRunning: true},
	StatusRunning: {StatusPaused: true, StatusStopped: true, StatusError: true},
	StatusPaused:  {StatusRunning: true, StatusStopped: true, StatusError: true},
	StatusError:   {StatusStopped: true},
}

// Transition applies the FSM per spec.md §4.13: only STOPPED->RUNNING consults the license
// gate; reason is cleared on any transition into RUNNING.
func Transition(ctx context.Context, cur Runtime, target Status, reason string, license LicenseChecker, now time.Time) (Runtime, error) {
	allowed, ok := validTransitions[cur.Status]
	if !ok || !allowed[target] {
		return cur, fmt.Errorf("botruntime: invalid transition %s -> %s", cur.Status, target)
	}

	if cur.Status == StatusStopped && target == StatusRunning {
		if license != nil {
			if err := license.CheckBotStart(ctx, cur.BotID); err != nil {
				return cur, fmt.Errorf("botruntime: license gate rejected start: %w", err)
			}
		}
	}

	next := cur
	next.Status = target
	next.UpdatedAt = now
	next.TransitionID = uuid.NewString()
	if target == StatusRunning {
		next.Reason = ""
	} else {
		next.Reason = reason
	}
	return next, nil
}
