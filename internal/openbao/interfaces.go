package openbao

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
)

// MountAPI is the part of OpenBao the mount workflow depends on.
// *Client implements it; tests use MockMountAPI.
type MountAPI interface {
	// EnableAuthMethod enables an auth method at path.
	EnableAuthMethod(ctx context.Context, path string, mount MountRequest) error

	// EnableSecretsEngine enables a secrets engine at path.
	EnableSecretsEngine(ctx context.Context, path string, mount MountRequest) error

	// CapabilitiesSelf returns the calling token's capabilities for each path.
	CapabilitiesSelf(ctx context.Context, paths []string) (map[string]sets.Set[string], error)
}

// LogicalAPI reads and writes engine-specific endpoints such as
// <ldap>/static-role/<name> or <kv>/config.
type LogicalAPI interface {
	Read(ctx context.Context, path string) (map[string]any, error)
	Write(ctx context.Context, path string, data map[string]any) (map[string]any, error)
	Delete(ctx context.Context, path string) error
}

// HealthChecker is satisfied by *Client.
type HealthChecker interface {
	IsHealthy(ctx context.Context) (bool, error)
}

// API is everything the console needs from one authenticated client.
type API interface {
	MountAPI
	LogicalAPI
}

var (
	_ API           = (*Client)(nil)
	_ HealthChecker = (*Client)(nil)
)
