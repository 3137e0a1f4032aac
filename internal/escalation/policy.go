// Package escalation decides whether a service is up or down from a probe
// and a bounded number of retries.
//
// Confirmation is asymmetric: a single reachable probe is enough to call a
// service up, while calling it down takes the initial probe plus every retry
// failing.
package escalation

import (
	"context"
	"time"

	"github.com/hazz-dev/uptimebot/internal/probe"
)

// Outcome is the classification of one service for one monitor cycle.
type Outcome int

const (
	NoChange Outcome = iota
	Up
	Down
)

func (o Outcome) String() string {
	switch o {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "no_change"
	}
}

const (
	DefaultRetryCount = 3
	DefaultRetryDelay = 10 * time.Second
)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Verdict is what Classify decided plus the evidence it used.
type Verdict struct {
	Outcome  Outcome
	Attempts int
	Last     probe.Result
}

// Policy holds the retry budget.
type Policy struct {
	RetryCount int
	RetryDelay time.Duration
	Sleep      SleepFunc
}

// New returns a Policy using the real clock.
func New(retryCount int, retryDelay time.Duration) *Policy {
	return &Policy{
		RetryCount: retryCount,
		RetryDelay: retryDelay,
		Sleep:      Sleep,
	}
}

// Classify probes endpoint once and, if unreachable, retries up to
// RetryCount times with RetryDelay before each retry. A context cancelled
// during a delay or a failed probe yields NoChange.
func (p *Policy) Classify(ctx context.Context, endpoint string, prober probe.Prober) Verdict {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	v := Verdict{}
	for attempt := 0; attempt <= p.RetryCount; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.RetryDelay); err != nil {
				v.Outcome = NoChange
				return v
			}
		}
		v.Attempts++
		v.Last = prober.Probe(ctx, endpoint)
		if v.Last.Reachable {
			v.Outcome = Up
			return v
		}
		if ctx.Err() != nil {
			v.Outcome = NoChange
			return v
		}
	}
	v.Outcome = Down
	return v
}

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
