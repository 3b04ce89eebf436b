package openbao

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
)

// MockMountAPI is a mock implementation of API for testing.
// Unset functions succeed; CapabilitiesSelf then grants root on every path.
type MockMountAPI struct {
	// EnableAuthMethodFunc controls the behavior of EnableAuthMethod
	EnableAuthMethodFunc func(ctx context.Context, path string, mount MountRequest) error
	// EnableSecretsEngineFunc controls the behavior of EnableSecretsEngine
	EnableSecretsEngineFunc func(ctx context.Context, path string, mount MountRequest) error
	// CapabilitiesSelfFunc controls the behavior of CapabilitiesSelf
	CapabilitiesSelfFunc func(ctx context.Context, paths []string) (map[string]sets.Set[string], error)
	// ReadFunc controls the behavior of Read
	ReadFunc func(ctx context.Context, path string) (map[string]any, error)
	// WriteFunc controls the behavior of Write
	WriteFunc func(ctx context.Context, path string, data map[string]any) (map[string]any, error)
	// DeleteFunc controls the behavior of Delete
	DeleteFunc func(ctx context.Context, path string) error
}

var _ API = (*MockMountAPI)(nil)

// EnableAuthMethod implements MountAPI.
func (m *MockMountAPI) EnableAuthMethod(ctx context.Context, path string, mount MountRequest) error {
	if m.EnableAuthMethodFunc != nil {
		return m.EnableAuthMethodFunc(ctx, path, mount)
	}
	return nil
}

// EnableSecretsEngine implements MountAPI.
func (m *MockMountAPI) EnableSecretsEngine(ctx context.Context, path string, mount MountRequest) error {
	if m.EnableSecretsEngineFunc != nil {
		return m.EnableSecretsEngineFunc(ctx, path, mount)
	}
	return nil
}

// CapabilitiesSelf implements MountAPI.
func (m *MockMountAPI) CapabilitiesSelf(ctx context.Context, paths []string) (map[string]sets.Set[string], error) {
	if m.CapabilitiesSelfFunc != nil {
		return m.CapabilitiesSelfFunc(ctx, paths)
	}
	out := make(map[string]sets.Set[string], len(paths))
	for _, p := range paths {
		out[p] = sets.New("root")
	}
	return out, nil
}

// Read implements LogicalAPI.
func (m *MockMountAPI) Read(ctx context.Context, path string) (map[string]any, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, path)
	}
	return map[string]any{}, nil
}

// Write implements LogicalAPI.
func (m *MockMountAPI) Write(ctx context.Context, path string, data map[string]any) (map[string]any, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, path, data)
	}
	return nil, nil
}

// Delete implements LogicalAPI.
func (m *MockMountAPI) Delete(ctx context.Context, path string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, path)
	}
	return nil
}
