package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gcalpaper/internal/backoff"
	"gcalpaper/internal/fault"
	"gcalpaper/internal/sleepmem"
)

func newTracker(t *testing.T, store sleepmem.Store) *backoff.Tracker {
	t.Helper()
	tr, err := backoff.NewTracker(store, backoff.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	return tr
}

func TestNext_DoublesAndCaps(t *testing.T) {
	p := backoff.DefaultPolicy
	for d := 15; d < 300; d++ {
		got := backoff.State{DelaySeconds: d, AttemptCount: 1}.Next(p)
		want := min(2*d, 300)
		if got.DelaySeconds != want {
			t.Fatalf("Next(%d) delay = %d, want %d", d, got.DelaySeconds, want)
		}
		if got.AttemptCount != 2 {
			t.Fatalf("Next(%d) attempts = %d, want 2", d, got.AttemptCount)
		}
	}

	got := backoff.State{DelaySeconds: 300, AttemptCount: 5}.Next(p)
	if got.DelaySeconds != 300 {
		t.Errorf("delay at cap should stay 300, got %d", got.DelaySeconds)
	}
}

func TestRecordFailure_FirstFailureStartsAtMinimum(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, &sleepmem.MemoryStore{})

	st, err := tr.RecordFailure(ctx)
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if st.DelaySeconds != 15 || st.AttemptCount != 1 {
		t.Errorf("unexpected state %+v", st)
	}
	delay, err := tr.CurrentDelay(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if delay != 15*time.Second {
		t.Errorf("CurrentDelay() = %v, want 15s", delay)
	}
}

func TestRecordFailure_SequenceAcrossWakes(t *testing.T) {
	ctx := context.Background()
	store := &sleepmem.MemoryStore{}

	// A fresh tracker per call models a fresh process after each wake.
	want := []int{15, 30, 60, 120, 240, 300, 300}
	for i, w := range want {
		st, err := newTracker(t, store).RecordFailure(ctx)
		if err != nil {
			t.Fatalf("failure %d: unexpected error %v", i+1, err)
		}
		if st.DelaySeconds != w || st.AttemptCount != i+1 {
			t.Fatalf("failure %d: got %+v, want delay %d attempts %d", i+1, st, w, i+1)
		}
	}
}

func TestRecordFailure_ExhaustsOnLastCall(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, &sleepmem.MemoryStore{})

	for i := 1; i < backoff.DefaultPolicy.MaxCount; i++ {
		if _, err := tr.RecordFailure(ctx); err != nil {
			t.Fatalf("failure %d: unexpected error %v", i, err)
		}
	}

	st, err := tr.RecordFailure(ctx)
	if !errors.Is(err, fault.ErrBackoffExhausted) {
		t.Fatalf("expected ErrBackoffExhausted, got %v", err)
	}
	if fault.KindOf(err) != fault.BackoffExhausted {
		t.Errorf("expected BackoffExhausted kind, got %v", fault.KindOf(err))
	}
	if st.AttemptCount != backoff.DefaultPolicy.MaxCount {
		t.Errorf("attempts = %d, want %d", st.AttemptCount, backoff.DefaultPolicy.MaxCount)
	}
}

func TestClear_ResetsState(t *testing.T) {
	ctx := context.Background()
	store := &sleepmem.MemoryStore{}
	tr := newTracker(t, store)

	for i := 0; i < 5; i++ {
		if _, err := tr.RecordFailure(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	st, err := tr.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != (backoff.State{}) {
		t.Errorf("expected (0,0) after Clear, got %+v", st)
	}

	// The next failure starts over at the minimum.
	st, err = tr.RecordFailure(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.DelaySeconds != 15 || st.AttemptCount != 1 {
		t.Errorf("unexpected state after clear+failure %+v", st)
	}
}

func TestRecordFailure_StoreError(t *testing.T) {
	boom := errors.New("flash worn out")
	tr := newTracker(t, &sleepmem.MemoryStore{LoadErr: boom})
	if _, err := tr.RecordFailure(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	bad := []backoff.Policy{
		{Min: 0, Max: time.Minute, MaxCount: 3},
		{Min: time.Minute, Max: time.Second, MaxCount: 3},
		{Min: time.Second, Max: time.Minute, MaxCount: 0},
	}
	for _, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("expected %+v to be invalid", p)
		}
	}
	if err := backoff.DefaultPolicy.Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
}
