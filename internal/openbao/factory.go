package openbao

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type cachedToken struct {
	token      string
	expiration time.Time
}

// ClientFactory builds clients that share a configuration template (CA bundle,
// namespace, timeouts) and one endpoint guard.
type ClientFactory struct {
	template ClientConfig

	mu         sync.RWMutex
	clients    map[string]*http.Client
	tokenCache map[string]cachedToken

	guard *endpointGuard
}

func newClientFactory(template ClientConfig, guard *endpointGuard) *ClientFactory {
	t := template
	t.BaseURL = ""
	t.Token = ""
	return &ClientFactory{
		template:   t,
		clients:    make(map[string]*http.Client),
		tokenCache: make(map[string]cachedToken),
		guard:      guard,
	}
}

// New constructs an unauthenticated client for baseURL. The underlying
// http.Client is reused per baseURL.
func (f *ClientFactory) New(baseURL string) (*Client, error) {
	if f == nil {
		return nil, fmt.Errorf("client factory is required")
	}

	cfg := f.template
	cfg.BaseURL = baseURL

	f.mu.RLock()
	httpClient, ok := f.clients[baseURL]
	f.mu.RUnlock()

	if !ok {
		var err error
		httpClient, err = newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		if existing, found := f.clients[baseURL]; found {
			httpClient = existing
		} else {
			f.clients[baseURL] = httpClient
		}
		f.mu.Unlock()
	}

	client, err := newClientWithGuard(cfg, f.guard)
	if err != nil {
		return nil, err
	}
	client.httpClient = httpClient
	return client, nil
}

// NewWithToken constructs an authenticated client for baseURL and token.
func (f *ClientFactory) NewWithToken(baseURL, token string) (*Client, error) {
	client, err := f.New(baseURL)
	if err != nil {
		return nil, err
	}
	client.token = token
	return client, nil
}

// LoginJWT authenticates via the JWT auth method at mount and returns the
// client token. Tokens are cached per mount and role until shortly before expiry.
func (f *ClientFactory) LoginJWT(ctx context.Context, baseURL, mount, role, jwtToken string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("client factory is required")
	}
	cacheKey := baseURL + "|" + mount + "|" + role

	f.mu.RLock()
	cached, ok := f.tokenCache[cacheKey]
	f.mu.RUnlock()

	if ok && time.Now().Before(cached.expiration) {
		return cached.token, nil
	}

	client, err := f.New(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to create OpenBao client for JWT login: %w", err)
	}

	token, ttl, err := client.LoginJWT(ctx, mount, role, jwtToken)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate using JWT Auth: %w", err)
	}

	if ttl > 0 {
		// Expire 10 seconds early so a cached token is never used at the edge of its TTL.
		expiration := time.Now().Add(time.Duration(ttl)*time.Second - 10*time.Second)
		if time.Now().Before(expiration) {
			f.mu.Lock()
			f.tokenCache[cacheKey] = cachedToken{
				token:      token,
				expiration: expiration,
			}
			f.mu.Unlock()
		}
	}

	return token, nil
}

// NewWithJWT constructs an authenticated client by performing JWT login against baseURL.
func (f *ClientFactory) NewWithJWT(ctx context.Context, baseURL, mount, role, jwtToken string) (*Client, error) {
	token, err := f.LoginJWT(ctx, baseURL, mount, role, jwtToken)
	if err != nil {
		return nil, err
	}

	client, err := f.NewWithToken(baseURL, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated OpenBao client: %w", err)
	}

	return client, nil
}
