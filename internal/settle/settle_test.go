package settle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/aboutus/listsync/internal/remote"
)

// recordingPolicy returns a policy whose sleeps are recorded instead of
// waited.
func recordingPolicy(rules map[OpKind]Rule) (*Policy, *[]time.Duration) {
	var slept []time.Duration
	p := &Policy{
		Rules:    rules,
		Fallback: Rule{Attempts: 1},
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return p, &slept
}

func TestDoPausesAfterSuccess(t *testing.T) {
	p, slept := recordingPolicy(map[OpKind]Rule{
		OpViewFieldsReset: {Pause: time.Second, Attempts: 1},
	})

	calls := 0
	err := p.Do(context.Background(), OpViewFieldsReset, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if diff := cmp.Diff([]time.Duration{time.Second}, *slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDoRetriesTransientWithBackoff(t *testing.T) {
	p, slept := recordingPolicy(map[OpKind]Rule{
		OpViewFieldAdd: {Pause: 250 * time.Millisecond, Attempts: 4, Backoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond},
	})

	calls := 0
	err := p.Do(context.Background(), OpViewFieldAdd, func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return fmt.Errorf("add: %w", remote.ErrThrottled)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		250 * time.Millisecond,
	}
	if diff := cmp.Diff(want, *slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p, slept := recordingPolicy(map[OpKind]Rule{
		OpFieldCreate: {Attempts: 3, Backoff: time.Second},
	})

	calls := 0
	err := p.Do(context.Background(), OpFieldCreate, func(ctx context.Context) error {
		calls++
		return remote.ErrForbidden
	})
	if !errors.Is(err, remote.ErrForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if calls != 1 || len(*slept) != 0 {
		t.Errorf("expected a single attempt without sleeping, got %d calls, sleeps %v", calls, *slept)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	p, _ := recordingPolicy(map[OpKind]Rule{
		OpFieldUpdate: {Attempts: 2},
	})

	calls := 0
	err := p.Do(context.Background(), OpFieldUpdate, func(ctx context.Context) error {
		calls++
		return remote.ErrUnavailable
	})
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestCancelledPauseKeepsSuccess(t *testing.T) {
	p := &Policy{Rules: map[OpKind]Rule{OpFieldCreate: {Pause: time.Hour, Attempts: 1}}}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, OpFieldCreate, func(ctx context.Context) error {
			calls++
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("a write that went through must not fail, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do kept pausing after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBackoffHonorsContext(t *testing.T) {
	p := &Policy{Rules: map[OpKind]Rule{OpViewFieldAdd: {Attempts: 3, Backoff: time.Hour}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.Do(ctx, OpViewFieldAdd, func(ctx context.Context) error {
		calls++
		return remote.ErrThrottled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", calls)
	}
}

func TestDefaultRules(t *testing.T) {
	p := Default()
	if p.Rule(OpViewFieldsReset).Pause == 0 {
		t.Error("reset should pause before re-adding fields")
	}
	if p.Rule(OpViewFieldAdd).Pause == 0 {
		t.Error("each view field add should pause")
	}
	if NoWait().Rule(OpViewFieldAdd).Attempts != 1 {
		t.Error("NoWait should make a single attempt")
	}
}
