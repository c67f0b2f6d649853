package botruntime

import (
	"context"
	"errors"
	"testing"
	"time"
)

type allowLicense struct{}

func (allowLicense) CheckBotStart(ctx context.Context, botID string) error { return nil }

type denyLicense struct{ err error }

func (d denyLicense) CheckBotStart(ctx context.Context, botID string) error { return d.err }

func TestTransitionStoppedToRunningRequiresLicense(t *testing.T) {
	cur := Runtime{BotID: "b1", Status: StatusStopped}
	_, err := Transition(context.Background(), cur, StatusRunning, "", denyLicense{err: errors.New("max bots exceeded")}, time.Now())
	if err == nil {
		t.Fatal("expected license denial to block transition")
	}
}

func TestTransitionStoppedToRunningAllowedClearsReason(t *testing.T) {
	cur := Runtime{BotID: "b1", Status: StatusStopped, Reason: "manual stop"}
	next, err := Transition(context.Background(), cur, StatusRunning, "", allowLicense{}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if next.Status != StatusRunning || next.Reason != "" {
		t.Fatalf("expected running with cleared reason, got %+v", next)
	}
	if next.TransitionID == "" {
		t.Fatal("expected a transition id to be stamped")
	}
}

func TestTransitionRunningToPausedDoesNotConsultLicense(t *testing.T) {
	cur := Runtime{BotID: "b1", Status: StatusRunning}
	next, err := Transition(context.Background(), cur, StatusPaused, "rate limited", nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if next.Status != StatusPaused || next.Reason != "rate limited" {
		t.Fatalf("expected paused with reason retained, got %+v", next)
	}
}

func TestTransitionRejectsInvalidTransition(t *testing.T) {
	cur := Runtime{BotID: "b1", Status: StatusStopped}
	_, err := Transition(context.Background(), cur, StatusPaused, "", nil, time.Now())
	if err == nil {
		t.Fatal("expected STOPPED->PAUSED to be rejected")
	}
}

func TestTransitionErrorToStoppedAllowed(t *testing.T) {
	cur := Runtime{BotID: "b1", Status: StatusError}
	next, err := Transition(context.Background(), cur, StatusStopped, "recovered", nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if next.Status != StatusStopped {
		t.Fatalf("expected stopped, got %+v", next)
	}
}
