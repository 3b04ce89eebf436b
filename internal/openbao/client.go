package openbao

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/dc-tec/openbao-console/internal/constants"
)

// HealthResponse represents the response from GET /v1/sys/health.
// The health endpoint returns different status codes based on cluster state:
// - 200: initialized, unsealed, and active
// - 429: unsealed and standby
// - 473: performance standby
// - 501: not initialized
// - 503: sealed
type HealthResponse struct {
	Initialized        bool   `json:"initialized"`
	Sealed             bool   `json:"sealed"`
	Standby            bool   `json:"standby"`
	PerformanceStandby bool   `json:"performance_standby"`
	ServerTimeUTC      int64  `json:"server_time_utc,omitempty"`
	Version            string `json:"version,omitempty"`
	ClusterName        string `json:"cluster_name,omitempty"`
	ClusterID          string `json:"cluster_id,omitempty"`
}

// MountRequest is the body of POST /v1/sys/auth/<path> and POST /v1/sys/mounts/<path>.
// Options is only meaningful for secrets engines.
type MountRequest struct {
	Type                  string         `json:"type"`
	Description           string         `json:"description,omitempty"`
	Config                map[string]any `json:"config,omitempty"`
	Options               map[string]any `json:"options,omitempty"`
	Local                 bool           `json:"local,omitempty"`
	SealWrap              bool           `json:"seal_wrap,omitempty"`
	ExternalEntropyAccess bool           `json:"external_entropy_access,omitempty"`
	PluginVersion         string         `json:"plugin_version,omitempty"`
}

// Client talks to the OpenBao HTTP API on behalf of one operator token.
type Client struct {
	baseURL    string
	token      string
	namespace  string
	httpClient *http.Client

	guard *endpointGuard
}

// ClientConfig holds configuration for creating a new Client.
type ClientConfig struct {
	// ServerKey is set by ClientManager.FactoryFor and names the shared
	// throttling state. Clients from NewClient leave it empty.
	ServerKey string

	// BaseURL is the OpenBao API URL (e.g., "https://bao.example:8200").
	BaseURL string
	// Token is sent as X-Vault-Token on authenticated calls.
	Token string
	// Namespace is sent as X-Vault-Namespace when set.
	Namespace string
	// CACert is the PEM-encoded CA bundle. If empty, the system pool is used.
	CACert []byte
	// ConnectionTimeout defaults to constants.DefaultConnectionTimeout.
	ConnectionTimeout time.Duration
	// RequestTimeout defaults to constants.DefaultRequestTimeout.
	RequestTimeout time.Duration

	// ThrottleDisabled turns off rate limiting and circuit breaking.
	ThrottleDisabled bool
	// RateLimitQPS defaults to 2.0 if zero or negative.
	RateLimitQPS float64
	// RateLimitBurst defaults to 4 if zero or negative.
	RateLimitBurst int
	// CircuitBreakerFailureThreshold is the number of consecutive failures before opening the circuit.
	CircuitBreakerFailureThreshold int
	// CircuitBreakerOpenDuration is how long the circuit stays open before probing again.
	CircuitBreakerOpenDuration time.Duration
}

// NewClient creates a new OpenBao API client with its own throttling state.
// Use ClientManager to share state between clients of the same server.
func NewClient(config ClientConfig) (*Client, error) {
	var guard *endpointGuard
	if !config.ThrottleDisabled {
		guard = newEndpointGuard(config)
	}
	return newClientWithGuard(config, guard)
}

func newClientWithGuard(config ClientConfig, guard *endpointGuard) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	httpClient, err := newHTTPClient(config)
	if err != nil {
		return nil, err
	}

	if config.ThrottleDisabled {
		guard = nil
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		namespace:  config.Namespace,
		httpClient: httpClient,
		guard:      guard,
	}, nil
}

func newHTTPClient(config ClientConfig) (*http.Client, error) {
	connectionTimeout := config.ConnectionTimeout
	if connectionTimeout == 0 {
		connectionTimeout = constants.DefaultConnectionTimeout
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = constants.DefaultRequestTimeout
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL %q: %w", config.BaseURL, err)
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if parsedURL.Hostname() != "" {
		tlsConfig.ServerName = parsedURL.Hostname()
	}

	if len(config.CACert) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(config.CACert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: connectionTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout,
	}, nil
}

// Token returns the authentication token.
func (c *Client) Token() string {
	return c.token
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Namespace returns the namespace requests are routed to.
func (c *Client) Namespace() string {
	return c.namespace
}

// Health queries the OpenBao health endpoint and returns the current node state.
// The body is parsed regardless of status code since sealed and standby
// nodes answer with non-2xx codes.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, constants.APIPathSysHealth, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}

	_, body, err := c.send(req, "failed to query health endpoint")
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	return &health, nil
}

// IsHealthy returns true if the node is initialized, unsealed, and reachable.
func (c *Client) IsHealthy(ctx context.Context) (bool, error) {
	health, err := c.Health(ctx)
	if err != nil {
		return false, err
	}

	return health.Initialized && !health.Sealed, nil
}

// JWTAuthLoginResponse represents the response from POST /v1/auth/<mount>/login.
type JWTAuthLoginResponse struct {
	Auth struct {
		ClientToken string `json:"client_token"`
		LeaseID     string `json:"lease_id"`
		Renewable   bool   `json:"renewable"`
		TTL         int    `json:"ttl"`
	} `json:"auth"`
}

// LoginJWT authenticates with the JWT auth method mounted at mount.
// It returns the client token and its TTL in seconds. It never retries.
func (c *Client) LoginJWT(ctx context.Context, mount, role, jwtToken string) (string, int, error) {
	if role == "" || jwtToken == "" {
		return "", 0, fmt.Errorf("role and jwtToken are required for JWT authentication")
	}
	if mount == "" {
		mount = constants.DefaultJWTAuthMount
	}

	bodyBytes, err := json.Marshal(map[string]string{
		"role": role,
		"jwt":  jwtToken,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal JWT auth request: %w", err)
	}

	loginPath := fmt.Sprintf(constants.APIPathAuthLoginTemplate, strings.Trim(mount, "/"))
	req, err := c.newRequest(ctx, http.MethodPost, loginPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create JWT auth request: %w", err)
	}
	// Login is unauthenticated even when the client carries a stale token.
	req.Header.Del(constants.HeaderVaultToken)

	resp, respBody, err := c.send(req, "failed to execute JWT auth request")
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, newResponseError(req, resp.StatusCode, respBody)
	}

	var authResp JWTAuthLoginResponse
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return "", 0, fmt.Errorf("failed to parse JWT auth response: %w", err)
	}

	if authResp.Auth.ClientToken == "" {
		return "", 0, fmt.Errorf("JWT auth response missing client_token")
	}

	return authResp.Auth.ClientToken, authResp.Auth.TTL, nil
}

// EnableAuthMethod enables an auth method at path via POST /v1/sys/auth/<path>.
func (c *Client) EnableAuthMethod(ctx context.Context, path string, mount MountRequest) error {
	return c.enableMount(ctx, constants.APIPathSysAuth, path, mount)
}

// EnableSecretsEngine enables a secrets engine at path via POST /v1/sys/mounts/<path>.
func (c *Client) EnableSecretsEngine(ctx context.Context, path string, mount MountRequest) error {
	return c.enableMount(ctx, constants.APIPathSysMounts, path, mount)
}

func (c *Client) enableMount(ctx context.Context, prefix, path string, mount MountRequest) error {
	if c.token == "" {
		return fmt.Errorf("authentication token required to enable a mount")
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return fmt.Errorf("mount path is required")
	}
	if mount.Type == "" {
		return fmt.Errorf("mount type is required")
	}

	bodyBytes, err := json.Marshal(mount)
	if err != nil {
		return fmt.Errorf("failed to marshal mount request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, prefix+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create mount request: %w", err)
	}

	resp, body, err := c.send(req, "failed to execute mount request")
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return newResponseError(req, resp.StatusCode, body)
	}
	return nil
}

// CapabilitiesSelf returns, per requested path, the capabilities of the client token.
// Paths missing from the response map to an empty set.
func (c *Client) CapabilitiesSelf(ctx context.Context, paths []string) (map[string]sets.Set[string], error) {
	if c.token == "" {
		return nil, fmt.Errorf("authentication token required for capability checks")
	}
	if len(paths) == 0 {
		return map[string]sets.Set[string]{}, nil
	}

	bodyBytes, err := json.Marshal(map[string][]string{"paths": paths})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capabilities request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, constants.APIPathSysCapabilitiesSelf, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create capabilities request: %w", err)
	}

	resp, body, err := c.send(req, "failed to execute capabilities request")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newResponseError(req, resp.StatusCode, body)
	}

	return parseCapabilities(body, paths)
}

// parseCapabilities accepts both the wrapped ({"data": {...}}) and the flat
// response layouts OpenBao has used for sys/capabilities-self.
func parseCapabilities(body []byte, paths []string) (map[string]sets.Set[string], error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse capabilities response: %w", err)
	}

	source := raw
	if data, ok := raw["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err == nil && len(nested) > 0 {
			source = nested
		}
	}

	out := make(map[string]sets.Set[string], len(paths))
	for _, p := range paths {
		caps := sets.New[string]()
		if v, ok := source[p]; ok {
			var list []string
			if err := json.Unmarshal(v, &list); err != nil {
				return nil, fmt.Errorf("failed to parse capabilities for %q: %w", p, err)
			}
			caps.Insert(list...)
		} else if len(paths) == 1 {
			if v, ok := source["capabilities"]; ok {
				var list []string
				if err := json.Unmarshal(v, &list); err != nil {
					return nil, fmt.Errorf("failed to parse capabilities: %w", err)
				}
				caps.Insert(list...)
			}
		}
		out[p] = caps
	}
	return out, nil
}

// logicalResponse is the common envelope of logical (non-sys) endpoints.
type logicalResponse struct {
	Data     map[string]any `json:"data"`
	Warnings []string       `json:"warnings"`
}

// Read performs GET /v1/<path> and returns the response data block.
func (c *Client) Read(ctx context.Context, path string) (map[string]any, error) {
	resp, body, req, err := c.logical(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newResponseError(req, resp.StatusCode, body)
	}
	var out logicalResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return out.Data, nil
}

// Write performs POST /v1/<path>. The returned data block is nil for 204 responses.
func (c *Client) Write(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
	bodyBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	resp, body, req, err := c.logical(ctx, http.MethodPost, path, bodyBytes)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, newResponseError(req, resp.StatusCode, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var out logicalResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return out.Data, nil
}

// Delete performs DELETE /v1/<path>.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, body, req, err := c.logical(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return newResponseError(req, resp.StatusCode, body)
	}
	return nil
}

func (c *Client) logical(ctx context.Context, method, path string, body []byte) (*http.Response, []byte, *http.Request, error) {
	if c.token == "" {
		return nil, nil, nil, fmt.Errorf("authentication token required for %s %s", method, path)
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil, nil, fmt.Errorf("path is required")
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = c.newRequest(ctx, method, constants.APIPathPrefix+path, reader)
	} else {
		req, err = c.newRequest(ctx, method, constants.APIPathPrefix+path, nil)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}

	resp, respBody, err := c.send(req, fmt.Sprintf("failed to %s %s", strings.ToLower(method), path))
	if err != nil {
		return nil, nil, nil, err
	}
	return resp, respBody, req, nil
}
