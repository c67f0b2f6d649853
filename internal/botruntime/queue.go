// Package botruntime implements the bot orchestrator of spec.md §4.13: an idempotent job queue
// abstraction and the bot status finite-state machine.
//
// Grounded on the teacher's internal/scheduler job-dispatch model (named units with enable/
// disable and a status snapshot) generalized into a queue with idempotent ids and explicit
// enqueue semantics spec.md §4.13 requires.
package botruntime

import (
	"context"
	"fmt"
	"sync"
)

// JobState mirrors the external queue's lifecycle states spec.md §4.13 names.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one queued unit of work for a bot tick.
type Job struct {
	ID      string
	Payload interface{}
	State   JobState
}

// JobID returns the idempotent job id for a bot, per spec.md §4.13: "bot-<botId>".
func JobID(botID string) string {
	return fmt.Sprintf("bot-%s", botID)
}

// Queue is the minimal external-queue surface C13 depends on.
type Queue interface {
	GetJob(ctx context.Context, id string) (*Job, bool, error)
	Add(ctx context.Context, id string, payload interface{}) error
	Remove(ctx context.Context, id string) error
}

// EnqueueResult reports whether Enqueue actually scheduled new work.
type EnqueueResult struct {
	Queued bool
	JobID  string
}

// Enqueue implements spec.md §4.13's enqueue semantics over any Queue implementation:
//   - absent -> add, queued=true
//   - present in {waiting,active,delayed} -> queued=false (already scheduled)
//   - present terminal (completed/failed) -> remove then add, queued=true
//   - Add racing into "duplicate id" -> treat as already queued
func Enqueue(ctx context.Context, q Queue, botID string, payload interface{}) (EnqueueResult, error) {
	id := JobID(botID)
	job, exists, err := q.GetJob(ctx, id)
	if err != nil {
		return EnqueueResult{}, err
	}

	if !exists {
		if err := q.Add(ctx, id, payload); err != nil {
			if isDuplicateID(err) {
				return EnqueueResult{Queued: false, JobID: id}, nil
			}
			return EnqueueResult{}, err
		}
		return EnqueueResult{Queued: true, JobID: id}, nil
	}

	switch job.State {
	case JobWaiting, JobActive, JobDelayed:
		return EnqueueResult{Queued: false, JobID: id}, nil
	case JobCompleted, JobFailed:
		if err := q.Remove(ctx, id); err != nil {
			return EnqueueResult{}, err
		}
		if err := q.Add(ctx, id, payload); err != nil {
			if isDuplicateID(err) {
				return EnqueueResult{Queued: false, JobID: id}, nil
			}
			return EnqueueResult{}, err
		}
		return EnqueueResult{Queued: true, JobID: id}, nil
	default:
		return EnqueueResult{Queued: false, JobID: id}, nil
	}
}

type duplicateIDError struct{ id string }

func (e duplicateIDError) Error() string { return fmt.Sprintf("duplicate id: %s", e.id) }

func isDuplicateID(err error) bool {
	_, ok := err.(duplicateIDError)
	return ok
}

// InMemoryQueue is a mutex-guarded map-backed Queue, used both for the poll-mode deployment and
// in tests.
type InMemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{jobs: make(map[string]*Job)}
}

func (q *InMemoryQueue) GetJob(ctx context.Context, id string) (*Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *j
	return &cp, true, nil
}

func (q *InMemoryQueue) Add(ctx context.Context, id string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[id]; exists {
		return duplicateIDError{id: id}
	}
	q.jobs[id] = &Job{ID: id, Payload: payload, State: JobWaiting}
	return nil
}

func (q *InMemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, id)
	return nil
}

// SetState lets tests/workers move a job through its lifecycle.
func (q *InMemoryQueue) SetState(id string, state JobState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		j.State = state
	}
}

// PollQueue is the "no external queue" mode of spec.md §4.13: a no-op Queue whose GetJob always
// reports the job absent and whose Add and Remove do nothing, so Enqueue over it reports
// queued=true on every call. EnqueuePoll is what reports queued=false for poll mode.
type PollQueue struct{}

func (PollQueue) GetJob(ctx context.Context, id string) (*Job, bool, error) { return nil, false, nil }
func (PollQueue) Add(ctx context.Context, id string, payload interface{}) error { return nil }
func (PollQueue) Remove(ctx context.Context, id string) error                  { return nil }

// EnqueuePoll always reports queued=false, matching PollQueue's semantics directly without going
// through the general Enqueue state machine (poll mode has no job states to inspect).
func EnqueuePoll(botID string) EnqueueResult {
	return EnqueueResult{Queued: false, JobID: JobID(botID)}
}
