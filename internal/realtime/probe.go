package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/taskwire/taskwire/internal/logging"
)

// Prober answers whether the backend is reachable and the current
// credential accepted. It returns the round-trip latency on success,
// ErrUnreachable when the backend cannot be reached (retryable), and
// ErrUnauthorized when the backend rejects the credential (not
// retryable).
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// HTTPProbe probes an auth-independent liveness path over HTTP. The path
// never touches row-level data, so a response is purely a transport and
// credential signal: 401/403 means the credential is rejected, any other
// status below 500 means reachable, and network errors or 5xx mean
// unreachable.
type HTTPProbe struct {
	url    string
	tokens oauth2.TokenSource
	client *http.Client
	log    *logging.Logger
}

// NewHTTPProbe creates a probe against baseURL+healthPath. A nil token
// source sends unauthenticated probes.
func NewHTTPProbe(baseURL, healthPath string, tokens oauth2.TokenSource, timeout time.Duration, log *logging.Logger) *HTTPProbe {
	return &HTTPProbe{
		url:    baseURL + healthPath,
		tokens: tokens,
		client: &http.Client{Timeout: timeout},
		log:    log.Sub("probe"),
	}
}

// Probe performs one health check round trip.
func (p *HTTPProbe) Probe(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if p.tokens != nil {
		tok, err := p.tokens.Token()
		if err != nil {
			return 0, fmt.Errorf("%w: token source: %v", ErrUnauthorized, err)
		}
		tok.SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		p.log.Warn().Int("status", resp.StatusCode).Msg("health probe rejected")
		return elapsed, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return elapsed, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	default:
		p.log.Debug().Int("status", resp.StatusCode).Dur("latency", elapsed).Msg("health probe ok")
		return elapsed, nil
	}
}
