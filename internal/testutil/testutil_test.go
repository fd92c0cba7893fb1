package testutil

import (
	"context"
	"testing"
	"time"
)

func TestFixedClockAlwaysReturnsSameTime(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	clock := FixedClock{T: fixed}
	for i := 0; i < 3; i++ {
		if got := clock.Now(); !got.Equal(fixed) {
			t.Fatalf("FixedClock.Now() = %v, want %v", got, fixed)
		}
	}
}

func TestManualClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	clock.Advance(24 * time.Hour)
	want := start.Add(24 * time.Hour)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("after Advance, got %v want %v", got, want)
	}

	newTime := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(newTime)
	if got := clock.Now(); !got.Equal(newTime) {
		t.Fatalf("after Set, got %v want %v", got, newTime)
	}
}

func TestClockFromContextDefaultsToSystemClock(t *testing.T) {
	ctx := context.Background()
	before := time.Now()
	got := Now(ctx)
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Fatalf("default clock returned time outside range: %v", got)
	}
}

func TestWithClockRoundTrips(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithClock(context.Background(), FixedClock{T: fixed})
	if got := Now(ctx); !got.Equal(fixed) {
		t.Fatalf("Now(ctx) = %v, want %v", got, fixed)
	}
}

type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Errorf(format string, args ...any) { r.failed = true }
func (r *recordingTB) Helper()                           {}

func TestAssertDeterministicFlagsNondeterminism(t *testing.T) {
	n := 0
	rec := &recordingTB{TB: t}
	AssertDeterministic(rec, func() any {
		n++
		return map[string]int{"n": n}
	})
	if !rec.failed {
		t.Fatal("expected non-deterministic function to be flagged")
	}
}

func TestAssertDeterministicPassesOnStableOutput(t *testing.T) {
	rec := &recordingTB{TB: t}
	AssertDeterministic(rec, func() any {
		return map[string]int{"result": 42}
	})
	if rec.failed {
		t.Fatal("expected deterministic function not to be flagged")
	}
}

func TestAssertDeepEqualFlagsMismatch(t *testing.T) {
	rec := &recordingTB{TB: t}
	AssertDeepEqual(rec, []int{1, 2, 3}, []int{1, 2, 4})
	if !rec.failed {
		t.Fatal("expected mismatch to be flagged")
	}
}
