// Package monitor runs the periodic pass over every registered service:
// probe, classify, persist the new state and alert on transitions.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/uptimebot/internal/control"
	"github.com/hazz-dev/uptimebot/internal/escalation"
	"github.com/hazz-dev/uptimebot/internal/metrics"
	"github.com/hazz-dev/uptimebot/internal/notify"
	"github.com/hazz-dev/uptimebot/internal/probe"
	"github.com/hazz-dev/uptimebot/internal/storage"
)

const (
	DefaultInterval = 120 * time.Second
	notifyTimeout   = 10 * time.Second
)

// Notification kinds, used as the metrics label.
const (
	KindDown      = "down"
	KindRecovered = "recovered"
)

// Store defines the storage operations required by the loop.
type Store interface {
	Find(ctx context.Context, f storage.Filter) ([]storage.Service, error)
	UpdateOne(ctx context.Context, id string, p storage.Patch) error
	InsertCheck(ctx context.Context, c storage.Check) error
}

// Options holds the loop's tunables and optional collaborators.
type Options struct {
	// Interval is the pause between the end of one cycle and the next wake.
	Interval time.Duration
	// Recipient receives every alert.
	Recipient int64
	// SelfPingURL is probed once per completed cycle if set; the result is ignored.
	SelfPingURL string
	// Sleep replaces the real clock between cycles.
	Sleep   escalation.SleepFunc
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Loop is the background monitor. Start it once; Wait returns after the
// context passed to Start is cancelled and the current cycle has unwound.
type Loop struct {
	store    Store
	prober   probe.Prober
	policy   *escalation.Policy
	notifier notify.Notifier
	state    control.State

	interval    time.Duration
	recipient   int64
	selfPingURL string
	sleep       escalation.SleepFunc
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// New creates a Loop.
func New(store Store, prober probe.Prober, policy *escalation.Policy, notifier notify.Notifier, state control.State, opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = escalation.Sleep
	}
	return &Loop{
		store:       store,
		prober:      prober,
		policy:      policy,
		notifier:    notifier,
		state:       state,
		interval:    opts.Interval,
		recipient:   opts.Recipient,
		selfPingURL: opts.SelfPingURL,
		sleep:       opts.Sleep,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// Start runs the first cycle immediately in a new goroutine and then one
// cycle per interval. It is non-blocking.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	l.logger.Info("monitor started", "interval", l.interval)

	for {
		if err := l.RunCycle(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("monitor cycle skipped", "error", err)
		}
		if err := l.sleep(ctx, l.interval); err != nil {
			l.logger.Info("monitor stopped")
			return
		}
	}
}

// RunCycle performs one wake: it honours the pause flag, visits every
// service in stable order and finishes with the self-ping. An error means
// the cycle was skipped; per-service failures are logged, not returned.
func (l *Loop) RunCycle(ctx context.Context) error {
	start := l.now()

	paused, err := l.state.Paused(ctx)
	if err != nil {
		l.recordCycle(metrics.CycleFailed, 0)
		return fmt.Errorf("reading pause flag: %w", err)
	}
	if paused {
		l.logger.Debug("monitor paused, skipping cycle")
		l.recordCycle(metrics.CyclePaused, 0)
		return nil
	}

	services, err := l.store.Find(ctx, storage.Filter{})
	if err != nil {
		l.recordCycle(metrics.CycleFailed, 0)
		return fmt.Errorf("listing services: %w", err)
	}

	for _, svc := range services {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.visit(ctx, svc)
	}

	l.selfPing(ctx)

	elapsed := l.now().Sub(start)
	l.recordCycle(metrics.CycleCompleted, elapsed)
	l.logger.Info("monitor cycle completed", "services", len(services), "elapsed", elapsed)
	return nil
}

func (l *Loop) visit(ctx context.Context, svc storage.Service) {
	v := l.policy.Classify(ctx, svc.Endpoint, probe.Func(l.countedProbe))
	if l.metrics != nil {
		l.metrics.RecordClassification(v.Outcome.String())
	}

	var (
		patch      storage.Patch
		transition bool
		kind, text string
	)
	switch v.Outcome {
	case escalation.Up:
		patch = storage.Patch{Health: storage.HealthUp, SuccessDelta: 1}
		transition = svc.IsDown
		kind, text = KindRecovered, RecoveredMessage(svc)
	case escalation.Down:
		patch = storage.Patch{Health: storage.HealthDown, FailureDelta: 1}
		transition = !svc.IsDown
		kind, text = KindDown, DownMessage(svc)
	default:
		l.logger.Debug("service left unchanged", "id", svc.ID, "name", svc.Name)
		return
	}

	l.logger.Debug("service classified",
		"id", svc.ID,
		"name", svc.Name,
		"outcome", v.Outcome,
		"attempts", v.Attempts,
		"response_time", v.Last.ResponseTime,
		"error", v.Last.Error,
	)

	if err := l.store.UpdateOne(ctx, svc.ID, patch); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			l.logger.Info("service removed during cycle", "id", svc.ID, "name", svc.Name)
		} else {
			l.logger.Error("storing service state", "id", svc.ID, "name", svc.Name, "error", err)
		}
		return
	}

	check := storage.Check{
		ServiceID:  svc.ID,
		Status:     patch.Health,
		Attempts:   v.Attempts,
		ResponseMs: v.Last.ResponseTime.Milliseconds(),
		Error:      v.Last.Error,
		CheckedAt:  l.now(),
	}
	if err := l.store.InsertCheck(ctx, check); err != nil {
		l.logger.Warn("storing check history", "id", svc.ID, "error", err)
	}

	if transition {
		l.logger.Info("service state changed", "id", svc.ID, "name", svc.Name, "health", patch.Health)
		l.deliver(ctx, kind, text)
	}
}

// deliver sends text to the recipient. Failures are logged and dropped; the
// state change that triggered it stays committed.
func (l *Loop) deliver(ctx context.Context, kind, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := l.notifier.Send(ctx, l.recipient, text)
	if l.metrics != nil {
		l.metrics.RecordNotification(kind, err)
	}
	if err != nil {
		l.logger.Error("sending notification", "kind", kind, "recipient", l.recipient, "error", err)
	}
}

// selfPing probes the configured URL and discards the result.
func (l *Loop) selfPing(ctx context.Context) {
	if l.selfPingURL == "" {
		return
	}
	r := l.prober.Probe(ctx, l.selfPingURL)
	l.logger.Debug("self ping", "url", l.selfPingURL, "reachable", r.Reachable, "error", r.Error)
}

func (l *Loop) countedProbe(ctx context.Context, endpoint string) probe.Result {
	r := l.prober.Probe(ctx, endpoint)
	if l.metrics != nil {
		l.metrics.RecordProbe(r.Reachable)
	}
	return r
}

func (l *Loop) recordCycle(result string, d time.Duration) {
	if l.metrics != nil {
		l.metrics.RecordCycle(result, d)
	}
}

// DownMessage is the alert sent when a service goes down.
func DownMessage(svc storage.Service) string {
	return "🚨 DOWN ALERT\n" + svc.Name + "\n" + svc.Endpoint
}

// RecoveredMessage is the alert sent when a down service answers again.
func RecoveredMessage(svc storage.Service) string {
	return "✅ RECOVERED\n" + svc.Name + "\n" + svc.Endpoint
}
