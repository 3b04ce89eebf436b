package openbao

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dc-tec/openbao-console/internal/constants"
	consoleerrors "github.com/dc-tec/openbao-console/internal/errors"
	"github.com/dc-tec/openbao-console/internal/metrics"
)

// Endpoint classes, also used as the circuit trip metric label.
const (
	endpointEnableAuth   = "enable_auth"
	endpointEnableSecret = "enable_secret"
	endpointCapabilities = "capabilities"
	endpointLogin        = "login"
	endpointHealth       = "health"
	endpointLogical      = "logical"
)

// endpoint identifies what a request does to OpenBao. Breakers are keyed by
// class and target, so a broken plugin mount at one path does not block
// mounts at other paths or reads of other engines.
type endpoint struct {
	class  string
	target string
}

func (e endpoint) String() string {
	if e.target == "" {
		return e.class
	}
	return e.class + " " + e.target
}

func classify(req *http.Request) endpoint {
	path := req.URL.Path
	switch {
	case path == constants.APIPathSysHealth:
		return endpoint{class: endpointHealth}
	case path == constants.APIPathSysCapabilitiesSelf:
		return endpoint{class: endpointCapabilities}
	case strings.HasPrefix(path, constants.APIPathSysAuth):
		return endpoint{class: endpointEnableAuth, target: strings.TrimPrefix(path, constants.APIPathSysAuth)}
	case strings.HasPrefix(path, constants.APIPathSysMounts):
		return endpoint{class: endpointEnableSecret, target: strings.TrimPrefix(path, constants.APIPathSysMounts)}
	case strings.HasPrefix(path, "/v1/auth/") && strings.HasSuffix(path, "/login"):
		return endpoint{class: endpointLogin, target: strings.TrimSuffix(strings.TrimPrefix(path, "/v1/auth/"), "/login")}
	default:
		return endpoint{class: endpointLogical, target: req.Method + " " + strings.TrimPrefix(path, constants.APIPathPrefix)}
	}
}

// breaker counts consecutive failures of one endpoint. Once tripped it
// refuses calls until the cooldown passes, then lets a single call through to
// decide whether to close again.
type breaker struct {
	failures  int
	openUntil time.Time
	probing   bool
}

func (b *breaker) open(now time.Time) bool { return now.Before(b.openUntil) }

// succeed closes the breaker.
func (b *breaker) succeed() {
	*b = breaker{}
}

// fail records a failure and reports whether the breaker tripped because of it.
func (b *breaker) fail(now time.Time, threshold int, cooldown time.Duration) bool {
	wasProbe := b.probing
	b.probing = false
	b.failures++
	if wasProbe || b.failures >= threshold {
		b.openUntil = now.Add(cooldown)
		return true
	}
	return false
}

// endpointGuard throttles calls to one OpenBao server and holds a breaker per
// endpoint. It is shared by every client of that server.
type endpointGuard struct {
	limiter   *rate.Limiter
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	breakers map[endpoint]*breaker
}

func newEndpointGuard(cfg ClientConfig) *endpointGuard {
	qps := cfg.RateLimitQPS
	if qps <= 0 {
		qps = constants.DefaultRateLimitQPS
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = constants.DefaultRateLimitBurst
	}
	threshold := cfg.CircuitBreakerFailureThreshold
	if threshold <= 0 {
		threshold = constants.DefaultCircuitBreakerFailureThreshold
	}
	cooldown := cfg.CircuitBreakerOpenDuration
	if cooldown <= 0 {
		cooldown = constants.DefaultCircuitBreakerOpenDuration
	}

	return &endpointGuard{
		limiter:   rate.NewLimiter(rate.Limit(qps), burst),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		breakers:  make(map[endpoint]*breaker),
	}
}

// pass is one admitted call. done must be called with the call's result.
type pass struct {
	guard *endpointGuard
	ep    endpoint
}

// admit waits for the rate limiter and checks the endpoint's breaker. A nil
// guard admits everything.
func (g *endpointGuard) admit(ctx context.Context, req *http.Request) (*pass, error) {
	if g == nil {
		return nil, nil
	}
	ep := classify(req)

	g.mu.Lock()
	b := g.breakers[ep]
	if b == nil {
		b = &breaker{}
		g.breakers[ep] = b
	}
	now := g.now()
	switch {
	case b.open(now):
		until := b.openUntil
		g.mu.Unlock()
		return nil, consoleerrors.WrapTransientRemoteOverloaded(
			fmt.Errorf("circuit breaker open for %s (retry after %s)", ep, until.Sub(now).Truncate(time.Second)))
	case b.probing:
		g.mu.Unlock()
		return nil, consoleerrors.WrapTransientRemoteOverloaded(
			fmt.Errorf("circuit breaker for %s is waiting on a trial request", ep))
	case !b.openUntil.IsZero():
		b.probing = true
	}
	probe := b.probing
	g.mu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		if probe {
			g.mu.Lock()
			b.probing = false
			g.mu.Unlock()
		}
		return nil, err
	}
	return &pass{guard: g, ep: ep}, nil
}

func (p *pass) done(ok bool) {
	if p == nil {
		return
	}
	g := p.guard
	g.mu.Lock()
	b := g.breakers[p.ep]
	var tripped bool
	if ok {
		b.succeed()
	} else {
		tripped = b.fail(g.now(), g.threshold, g.cooldown)
	}
	g.mu.Unlock()

	if tripped {
		metrics.RecordCircuitTrip(p.ep.class)
	}
}

func (c *Client) newRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(constants.HeaderVaultRequest, "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set(constants.HeaderVaultToken, c.token)
	}
	if c.namespace != "" {
		req.Header.Set(constants.HeaderVaultNamespace, c.namespace)
	}
	return req, nil
}

// overloaded reports whether an answer should count against the breaker.
// sys/health reports seal and standby state through 429 and 5xx codes, so
// those are answers, not overload.
func overloaded(req *http.Request, status int) bool {
	if req.URL.Path == constants.APIPathSysHealth {
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// send performs req through the guard and reads the full body. Transport
// failures come back wrapped in ErrTransientConnection; 429 and 5xx answers
// come back as a *ResponseError wrapped in ErrTransientRemoteOverloaded, so
// callers still see the server's message.
func (c *Client) send(req *http.Request, op string) (*http.Response, []byte, error) {
	p, err := c.guard.admit(req.Context(), req)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		p.done(false)
		return nil, nil, consoleerrors.WrapTransientConnection(fmt.Errorf("%s: %w", op, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.done(false)
		return nil, nil, consoleerrors.WrapTransientConnection(fmt.Errorf("%s: failed to read response body: %w", op, err))
	}

	if overloaded(req, resp.StatusCode) {
		p.done(false)
		return nil, nil, consoleerrors.WrapTransientRemoteOverloaded(newResponseError(req, resp.StatusCode, body))
	}
	p.done(true)
	return resp, body, nil
}
