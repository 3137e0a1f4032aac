// Package probe performs single reachability checks against endpoints.
package probe

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Result is the outcome of a single probe.
type Result struct {
	Endpoint     string
	Reachable    bool
	ResponseTime time.Duration
	Error        string
	CheckedAt    time.Time
}

// Prober performs one reachability check. It never retries.
type Prober interface {
	Probe(ctx context.Context, endpoint string) Result
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, endpoint string) Result

func (f Func) Probe(ctx context.Context, endpoint string) Result {
	return f(ctx, endpoint)
}

// Dispatcher routes tcp:// endpoints to a TCP dial and everything else to
// an HTTP GET.
type Dispatcher struct {
	http *httpProber
	tcp  *tcpProber
}

// New returns a Prober whose checks are bounded by timeout.
func New(timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		http: newHTTPProber(timeout),
		tcp:  newTCPProber(timeout),
	}
}

func (d *Dispatcher) Probe(ctx context.Context, endpoint string) Result {
	if u, err := url.Parse(endpoint); err == nil && strings.EqualFold(u.Scheme, "tcp") {
		return d.tcp.probe(ctx, endpoint, u.Host)
	}
	return d.http.probe(ctx, endpoint)
}
