package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type httpProber struct {
	client *http.Client
}

func newHTTPProber(timeout time.Duration) *httpProber {
	return &httpProber{
		client: &http.Client{Timeout: timeout},
	}
}

// probe issues a GET. Any completed response counts as reachable, whatever
// its status code.
func (p *httpProber) probe(ctx context.Context, endpoint string) Result {
	start := time.Now()
	result := Result{
		Endpoint:  endpoint,
		CheckedAt: start,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.Error = fmt.Sprintf("creating request: %v", err)
		result.ResponseTime = time.Since(start)
		return result
	}

	resp, err := p.client.Do(req)
	result.ResponseTime = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	// Drain a little so the connection can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	resp.Body.Close()

	result.Reachable = true
	return result
}
