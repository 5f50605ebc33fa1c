// Package backoff implements the exponential retry delay that is carried
// across deep-sleep cycles in two sleep-memory slots.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gcalpaper/internal/fault"
	"gcalpaper/internal/sleepmem"
)

// Policy bounds the retry delay and the number of consecutive failures.
type Policy struct {
	Min      time.Duration
	Max      time.Duration
	MaxCount int
}

// DefaultPolicy waits 15s after the first failure, doubles up to five
// minutes and gives up after twelve consecutive failures.
var DefaultPolicy = Policy{
	Min:      15 * time.Second,
	Max:      5 * time.Minute,
	MaxCount: 12,
}

func (p Policy) Validate() error {
	if p.Min < time.Second {
		return errors.New("backoff: minimum must be at least one second")
	}
	if p.Max < p.Min {
		return fmt.Errorf("backoff: maximum %v is below minimum %v", p.Max, p.Min)
	}
	if p.MaxCount <= 0 {
		return errors.New("backoff: max count must be positive")
	}
	return nil
}

// State is the persisted backoff record.
type State struct {
	DelaySeconds int `json:"delay_seconds"`
	AttemptCount int `json:"attempt_count"`
}

// Next returns the state after one more failure under p.
func (s State) Next(p Policy) State {
	minSec := int(p.Min / time.Second)
	maxSec := int(p.Max / time.Second)

	if s.DelaySeconds <= 0 {
		s.DelaySeconds = minSec
		s.AttemptCount = 0
	} else if s.DelaySeconds < maxSec {
		s.DelaySeconds = min(s.DelaySeconds*2, maxSec)
	}
	s.AttemptCount++
	return s
}

// Tracker reads and writes State through a sleep-memory store.
type Tracker struct {
	store  sleepmem.Store
	policy Policy
}

func NewTracker(store sleepmem.Store, policy Policy) (*Tracker, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{store: store, policy: policy}, nil
}

// State returns the currently persisted state.
func (t *Tracker) State(ctx context.Context) (State, error) {
	slots, err := t.store.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("backoff: load sleep memory: %w", err)
	}
	return State{
		DelaySeconds: int(slots[sleepmem.SlotBackoff]),
		AttemptCount: int(slots[sleepmem.SlotBackoffTimes]),
	}, nil
}

func (t *Tracker) save(ctx context.Context, s State) error {
	slots, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("backoff: load sleep memory: %w", err)
	}
	slots[sleepmem.SlotBackoff] = int32(s.DelaySeconds)
	slots[sleepmem.SlotBackoffTimes] = int32(s.AttemptCount)
	if err := t.store.Save(ctx, slots); err != nil {
		return fmt.Errorf("backoff: save sleep memory: %w", err)
	}
	return nil
}

// RecordFailure advances the delay and attempt count and persists them.
// Once the attempt count reaches the policy ceiling the new state is still
// persisted and a BackoffExhausted error is returned: the caller must stop
// scheduling retries.
func (t *Tracker) RecordFailure(ctx context.Context) (State, error) {
	cur, err := t.State(ctx)
	if err != nil {
		return State{}, err
	}
	next := cur.Next(t.policy)
	if err := t.save(ctx, next); err != nil {
		return next, err
	}
	if next.AttemptCount >= t.policy.MaxCount {
		return next, &fault.Error{
			Kind: fault.BackoffExhausted,
			Op:   "backoff",
			Err:  fmt.Errorf("%w (%d attempts)", fault.ErrBackoffExhausted, next.AttemptCount),
		}
	}
	return next, nil
}

// Clear resets both slots. Called after every fully successful cycle.
func (t *Tracker) Clear(ctx context.Context) error {
	return t.save(ctx, State{})
}

// CurrentDelay is the sleep length for the next backoff wake.
func (t *Tracker) CurrentDelay(ctx context.Context) (time.Duration, error) {
	s, err := t.State(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(s.DelaySeconds) * time.Second, nil
}
