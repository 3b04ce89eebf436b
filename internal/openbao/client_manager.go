package openbao

import (
	"sync"
)

// ClientManager owns the endpoint guards shared by every client of one
// OpenBao server, whichever operator token they carry.
type ClientManager struct {
	mu     sync.Mutex
	guards map[string]*endpointGuard

	// defaults holds the client settings and limits applied to new servers.
	defaults ClientConfig
}

// NewClientManager creates a new ClientManager with the given defaults.
func NewClientManager(defaults ClientConfig) *ClientManager {
	return &ClientManager{
		guards:   make(map[string]*endpointGuard),
		defaults: defaults,
	}
}

// FactoryFor returns a ClientFactory bound to serverKey. Factories for the same
// key share one rate limiter and set of circuit breakers.
//
// serverKey is usually the OpenBao address, optionally suffixed with the
// namespace. caCert is the PEM-encoded CA bundle for TLS verification.
func (m *ClientManager) FactoryFor(serverKey string, caCert []byte) *ClientFactory {
	if m == nil {
		return nil
	}

	template := m.defaults
	template.ServerKey = serverKey
	template.CACert = caCert

	return newClientFactory(template, m.guardFor(serverKey))
}

func (m *ClientManager) guardFor(serverKey string) *endpointGuard {
	if serverKey == "" || m.defaults.ThrottleDisabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guards[serverKey]
	if !ok {
		g = newEndpointGuard(m.defaults)
		m.guards[serverKey] = g
	}
	return g
}

// Close forgets every guard. After Close is called, the ClientManager should
// not be used.
func (m *ClientManager) Close() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.guards = make(map[string]*endpointGuard)
}
