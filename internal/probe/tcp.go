package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

type tcpProber struct {
	timeout time.Duration
}

func newTCPProber(timeout time.Duration) *tcpProber {
	return &tcpProber{timeout: timeout}
}

func (p *tcpProber) probe(ctx context.Context, endpoint, addr string) Result {
	start := time.Now()
	result := Result{
		Endpoint:  endpoint,
		CheckedAt: start,
	}

	dialer := &net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	result.ResponseTime = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("dial tcp %s: %v", addr, err)
		return result
	}
	conn.Close()
	result.Reachable = true
	return result
}
