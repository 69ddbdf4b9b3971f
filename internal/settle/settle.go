// Package settle holds the eventual-consistency policy used between
// dependent writes against the list service.
//
// The list service does not make schema writes synchronously visible: a view
// field list emptied by one call may still look populated to the next call,
// and a field added a moment ago may not be addable to a view yet. There is
// no read-after-write guarantee to wait on, so the policy combines two
// mitigations per operation kind:
//
//   - a pause after the operation succeeds, before the next dependent write
//   - bounded retries with exponential backoff for transient failures
//     (throttling, outages, conflicts from not-yet-visible writes)
//
// Non-transient failures are never retried.
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/aboutus/listsync/internal/remote"
)

// OpKind names a class of remote write.
type OpKind string

const (
	OpListCreate      OpKind = "list-create"
	OpListUpdate      OpKind = "list-update"
	OpFieldCreate     OpKind = "field-create"
	OpFieldUpdate     OpKind = "field-update"
	OpViewCreate      OpKind = "view-create"
	OpViewUpdate      OpKind = "view-update"
	OpViewFieldsReset OpKind = "view-fields-reset"
	OpViewFieldAdd    OpKind = "view-field-add"
)

// Rule is the policy for one operation kind.
type Rule struct {
	// Pause is waited after a successful call.
	Pause time.Duration
	// Attempts is the total number of tries for transient failures (>= 1).
	Attempts int
	// Backoff is the wait before the first retry; it doubles per retry.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Policy maps operation kinds to rules.
type Policy struct {
	Rules map[OpKind]Rule
	// Fallback applies to kinds without a rule.
	Fallback Rule
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the production policy.
func Default() *Policy {
	retry := Rule{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 4 * time.Second}

	resetRule := retry
	resetRule.Pause = time.Second
	addRule := retry
	addRule.Pause = 250 * time.Millisecond
	createRule := retry
	createRule.Pause = 250 * time.Millisecond

	return &Policy{
		Rules: map[OpKind]Rule{
			OpListCreate:      createRule,
			OpListUpdate:      retry,
			OpFieldCreate:     retry,
			OpFieldUpdate:     retry,
			OpViewCreate:      createRule,
			OpViewUpdate:      retry,
			OpViewFieldsReset: resetRule,
			OpViewFieldAdd:    addRule,
		},
		Fallback: retry,
	}
}

// NoWait returns a policy with no pauses and a single attempt per call.
func NoWait() *Policy {
	return &Policy{Fallback: Rule{Attempts: 1}}
}

// Rule returns the rule for kind.
func (p *Policy) Rule(kind OpKind) Rule {
	r, ok := p.Rules[kind]
	if !ok {
		r = p.Fallback
	}
	if r.Attempts < 1 {
		r.Attempts = 1
	}
	return r
}

// Do runs fn under the rule for kind: transient failures are retried with
// backoff, and a successful call is followed by the rule's pause. Once fn has
// succeeded Do returns nil.
func (p *Policy) Do(ctx context.Context, kind OpKind, fn func(ctx context.Context) error) error {
	rule := p.Rule(kind)
	wait := rule.Backoff

	var err error
	for attempt := 1; attempt <= rule.Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			// The write went through; a pause cut short by cancellation must
			// not turn it into a failure. The next call sees the cancelled ctx.
			_ = p.sleep(ctx, rule.Pause)
			return nil
		}
		if !remote.IsTransient(err) || attempt == rule.Attempts {
			break
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
		wait *= 2
		if rule.MaxBackoff > 0 && wait > rule.MaxBackoff {
			wait = rule.MaxBackoff
		}
	}
	if remote.IsTransient(err) && rule.Attempts > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", kind, rule.Attempts, err)
	}
	return err
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
