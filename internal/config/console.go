// Package config loads the console configuration and mount plans from HCL and
// renders drafts as OpenBao self-initialization stanzas.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/robfig/cron/v3"

	"github.com/dc-tec/openbao-console/internal/constants"
	operrors "github.com/dc-tec/openbao-console/internal/errors"
	"github.com/dc-tec/openbao-console/internal/journal"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/storage"
)

// LookupFunc resolves environment variables. os.LookupEnv is used when nil.
type LookupFunc func(string) (string, bool)

// Console is the console configuration file.
type Console struct {
	Address    string `hcl:"address,optional"`
	Namespace  string `hcl:"namespace,optional"`
	Enterprise bool   `hcl:"enterprise,optional"`
	CACertFile string `hcl:"ca_cert_file,optional"`

	Auth    *Auth          `hcl:"auth,block"`
	Client  *ClientOptions `hcl:"client,block"`
	Server  *Server        `hcl:"server,block"`
	Journal *Journal       `hcl:"journal,block"`

	// token holds BAO_TOKEN when the environment provides one.
	token string
}

// Auth selects how the console obtains its OpenBao token. A token file wins
// over a JWT login.
type Auth struct {
	TokenFile string `hcl:"token_file,optional"`
	JWTRole   string `hcl:"jwt_role,optional"`
	JWTFile   string `hcl:"jwt_file,optional"`
	JWTMount  string `hcl:"jwt_mount,optional"`
}

// ClientOptions tunes the OpenBao client.
type ClientOptions struct {
	RateLimitQPS      float64 `hcl:"rate_limit_qps,optional"`
	RateLimitBurst    int     `hcl:"rate_limit_burst,optional"`
	RequestTimeout    string  `hcl:"request_timeout,optional"`
	ConnectionTimeout string  `hcl:"connection_timeout,optional"`
	ThrottleDisabled  bool    `hcl:"throttle_disabled,optional"`
}

// Server configures the HTTP surface.
type Server struct {
	Listen             string `hcl:"listen,optional"`
	SessionIdleTimeout string `hcl:"session_idle_timeout,optional"`
	SweepSchedule      string `hcl:"sweep_schedule,optional"`
	MaxDrafts          int    `hcl:"max_drafts,optional"`
}

// Journal configures the mount journal archive.
type Journal struct {
	Provider           string `hcl:"provider,optional"`
	Bucket             string `hcl:"bucket,optional"`
	Region             string `hcl:"region,optional"`
	Endpoint           string `hcl:"endpoint,optional"`
	Prefix             string `hcl:"prefix,optional"`
	UsePathStyle       bool   `hcl:"use_path_style,optional"`
	EnsureExists       bool   `hcl:"ensure_exists,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
	MaxCount           int    `hcl:"max_count,optional"`
	MaxAge             string `hcl:"max_age,optional"`
}

// DefaultListen is the address serve binds when server.listen is unset.
const DefaultListen = ":8080"

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// LoadConsole reads and parses the configuration file at path.
func LoadConsole(path string, lookup LookupFunc) (*Console, error) {
	src, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, operrors.WrapPermanentConfig(fmt.Errorf("failed to read config %s: %w", path, err))
	}
	return ParseConsole(path, src, lookup)
}

// ParseConsole parses src, applies BAO_* environment overrides and validates
// the result. Unknown or duplicated attributes are errors.
func ParseConsole(filename string, src []byte, lookup LookupFunc) (*Console, error) {
	var c Console
	if err := decodeHCL(filename, src, &c); err != nil {
		return nil, err
	}
	c.applyEnv(lookup)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeHCL(filename string, src []byte, target any) error {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return operrors.WrapPermanentConfig(diags)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, target); diags.HasErrors() {
		return operrors.WrapPermanentConfig(diags)
	}
	return nil
}

func (c *Console) applyEnv(lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(constants.EnvBaoAddr); ok && v != "" {
		c.Address = v
	}
	if v, ok := lookup(constants.EnvBaoNamespace); ok && v != "" {
		c.Namespace = v
	}
	if v, ok := lookup(constants.EnvBaoCACert); ok && v != "" {
		c.CACertFile = v
	}
	if v, ok := lookup(constants.EnvBaoToken); ok {
		c.token = strings.TrimSpace(v)
	}
}

// Validate checks the values that HCL decoding cannot.
func (c *Console) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Address) == "" {
		problems = append(problems, "address is required (or set "+constants.EnvBaoAddr+")")
	}
	if c.Auth != nil && c.Auth.TokenFile == "" {
		if c.Auth.JWTRole == "" || c.Auth.JWTFile == "" {
			problems = append(problems, "auth requires token_file, or both jwt_role and jwt_file")
		}
	}
	if c.Client != nil {
		if err := checkDuration("client.request_timeout", c.Client.RequestTimeout); err != nil {
			problems = append(problems, err.Error())
		}
		if err := checkDuration("client.connection_timeout", c.Client.ConnectionTimeout); err != nil {
			problems = append(problems, err.Error())
		}
		if c.Client.RateLimitQPS < 0 || c.Client.RateLimitBurst < 0 {
			problems = append(problems, "client rate limits must not be negative")
		}
	}
	if c.Server != nil {
		if err := checkDuration("server.session_idle_timeout", c.Server.SessionIdleTimeout); err != nil {
			problems = append(problems, err.Error())
		}
		if c.Server.SweepSchedule != "" {
			if _, err := cronParser.Parse(c.Server.SweepSchedule); err != nil {
				problems = append(problems, fmt.Sprintf("server.sweep_schedule %q is invalid: %v", c.Server.SweepSchedule, err))
			}
		}
		if c.Server.MaxDrafts < 0 {
			problems = append(problems, "server.max_drafts must not be negative")
		}
	}
	if c.Journal != nil {
		switch storage.ProviderType(c.Journal.Provider) {
		case "", storage.ProviderS3:
			if c.Journal.Bucket == "" {
				problems = append(problems, "journal.bucket is required")
			}
		case storage.ProviderMemory:
		default:
			problems = append(problems, fmt.Sprintf("journal.provider %q is not supported", c.Journal.Provider))
		}
		if _, err := journal.ParseMaxAge(c.Journal.MaxAge); err != nil {
			problems = append(problems, "journal."+err.Error())
		}
		if c.Journal.MaxCount < 0 {
			problems = append(problems, "journal.max_count must not be negative")
		}
	}
	if len(problems) > 0 {
		return operrors.WrapPermanentConfig(fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; ")))
	}
	return nil
}

func checkDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s %q is not a duration", name, value)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// durationOr returns the parsed value, or def when value is empty. Values were
// checked by Validate.
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// CACert returns the PEM bundle from ca_cert_file, or nil when unset.
func (c *Console) CACert() ([]byte, error) {
	if c.CACertFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(c.CACertFile)
	if err != nil {
		return nil, operrors.WrapPermanentConfig(fmt.Errorf("failed to read CA certificate: %w", err))
	}
	return pem, nil
}

// OpenBaoClientConfig returns the client defaults for openbao.NewClientManager.
// BaseURL and Token are left for the factory.
func (c *Console) OpenBaoClientConfig() openbao.ClientConfig {
	cfg := openbao.ClientConfig{
		Namespace:         c.Namespace,
		RequestTimeout:    constants.DefaultRequestTimeout,
		ConnectionTimeout: constants.DefaultConnectionTimeout,
	}
	if c.Client != nil {
		cfg.RateLimitQPS = c.Client.RateLimitQPS
		cfg.RateLimitBurst = c.Client.RateLimitBurst
		cfg.ThrottleDisabled = c.Client.ThrottleDisabled
		cfg.RequestTimeout = durationOr(c.Client.RequestTimeout, constants.DefaultRequestTimeout)
		cfg.ConnectionTimeout = durationOr(c.Client.ConnectionTimeout, constants.DefaultConnectionTimeout)
	}
	return cfg
}

// ServerKey names the throttling state shared by clients of this server.
func (c *Console) ServerKey() string {
	if c.Namespace == "" {
		return c.Address
	}
	return c.Address + "#" + c.Namespace
}

// AuthMethod reports how the console authenticates.
func (c *Console) AuthMethod() string {
	if c.token == "" && c.Auth != nil && c.Auth.TokenFile == "" && c.Auth.JWTRole != "" {
		return constants.AuthMethodJWT
	}
	return constants.AuthMethodToken
}

// Token returns the operator token: BAO_TOKEN first, then auth.token_file.
// An empty token without error means the console runs unauthenticated.
func (c *Console) Token() (string, error) {
	if c.token != "" {
		return c.token, nil
	}
	if c.Auth == nil || c.Auth.TokenFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(c.Auth.TokenFile)
	if err != nil {
		return "", operrors.WrapPermanentConfig(fmt.Errorf("failed to read token file: %w", err))
	}
	return strings.TrimSpace(string(raw)), nil
}

// JWTLogin returns the mount, role and JWT for a JWT login.
func (c *Console) JWTLogin() (mount, role, jwt string, err error) {
	if c.Auth == nil || c.Auth.JWTRole == "" {
		return "", "", "", operrors.WrapPermanentConfig(fmt.Errorf("jwt auth is not configured"))
	}
	raw, err := os.ReadFile(c.Auth.JWTFile)
	if err != nil {
		return "", "", "", operrors.WrapPermanentConfig(fmt.Errorf("failed to read JWT file: %w", err))
	}
	mount = c.Auth.JWTMount
	if mount == "" {
		mount = constants.DefaultJWTAuthMount
	}
	return mount, c.Auth.JWTRole, strings.TrimSpace(string(raw)), nil
}

// Listen returns the serve address.
func (c *Console) Listen() string {
	if c.Server == nil || c.Server.Listen == "" {
		return DefaultListen
	}
	return c.Server.Listen
}

// SessionIdleTimeout is how long an untouched draft survives.
func (c *Console) SessionIdleTimeout() time.Duration {
	if c.Server == nil {
		return constants.DefaultSessionIdleTimeout
	}
	return durationOr(c.Server.SessionIdleTimeout, constants.DefaultSessionIdleTimeout)
}

// MaxDrafts caps open drafts on the HTTP surface.
func (c *Console) MaxDrafts() int {
	if c.Server == nil || c.Server.MaxDrafts == 0 {
		return constants.DefaultMaxDrafts
	}
	return c.Server.MaxDrafts
}

// SweepSchedule is the cron schedule of the idle draft sweeper.
func (c *Console) SweepSchedule() string {
	if c.Server == nil || c.Server.SweepSchedule == "" {
		return constants.DefaultSweepSchedule
	}
	return c.Server.SweepSchedule
}

// StorageConfig returns the journal archive settings, or nil when no journal
// block is configured.
func (c *Console) StorageConfig(creds *storage.Credentials) *storage.Config {
	if c.Journal == nil {
		return nil
	}
	cfg := &storage.Config{
		Provider:     storage.ProviderType(c.Journal.Provider),
		Bucket:       c.Journal.Bucket,
		EnsureExists: c.Journal.EnsureExists,
		Endpoint:     c.Journal.Endpoint,
		Region:       c.Journal.Region,
		Credentials:  creds,
	}
	if c.Journal.UsePathStyle || c.Journal.InsecureSkipVerify {
		cfg.S3 = &storage.S3Options{
			UsePathStyle:       c.Journal.UsePathStyle,
			InsecureSkipVerify: c.Journal.InsecureSkipVerify,
		}
	}
	return cfg
}

// RetentionPolicy returns the archive retention settings.
func (c *Console) RetentionPolicy() journal.RetentionPolicy {
	if c.Journal == nil {
		return journal.RetentionPolicy{}
	}
	maxAge, _ := journal.ParseMaxAge(c.Journal.MaxAge)
	return journal.RetentionPolicy{MaxCount: c.Journal.MaxCount, MaxAge: maxAge}
}

// JournalPrefix returns the object key prefix for journal entries.
func (c *Console) JournalPrefix() string {
	if c.Journal == nil {
		return ""
	}
	return c.Journal.Prefix
}
