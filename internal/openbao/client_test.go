package openbao

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dc-tec/openbao-console/internal/constants"
	consoleerrors "github.com/dc-tec/openbao-console/internal/errors"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  ClientConfig
		wantErr bool
	}{
		{
			name: "valid config with URL only",
			config: ClientConfig{
				BaseURL: "https://localhost:8200",
			},
			wantErr: false,
		},
		{
			name: "valid config with token and namespace",
			config: ClientConfig{
				BaseURL:   "https://localhost:8200",
				Token:     "s.abcdef123456",
				Namespace: "team-a",
			},
			wantErr: false,
		},
		{
			name: "valid config with empty CA cert uses system pool",
			config: ClientConfig{
				BaseURL: "https://localhost:8200",
				CACert:  []byte{},
			},
			wantErr: false,
		},
		{
			name:    "empty URL",
			config:  ClientConfig{},
			wantErr: true,
		},
		{
			name: "invalid CA cert",
			config: ClientConfig{
				BaseURL: "https://localhost:8200",
				CACert:  []byte("not a valid cert"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Health(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		response    HealthResponse
		wantHealthy bool
	}{
		{
			name:        "active and healthy",
			statusCode:  http.StatusOK,
			response:    HealthResponse{Initialized: true, Version: "2.4.0"},
			wantHealthy: true,
		},
		{
			name:        "standby still counts as healthy",
			statusCode:  http.StatusTooManyRequests,
			response:    HealthResponse{Initialized: true, Standby: true},
			wantHealthy: true,
		},
		{
			name:        "sealed",
			statusCode:  http.StatusServiceUnavailable,
			response:    HealthResponse{Initialized: true, Sealed: true},
			wantHealthy: false,
		},
		{
			name:        "not initialized",
			statusCode:  http.StatusNotImplemented,
			response:    HealthResponse{Sealed: true},
			wantHealthy: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != constants.APIPathSysHealth {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client, err := NewClient(ClientConfig{BaseURL: server.URL})
			require.NoError(t, err)

			healthy, err := client.IsHealthy(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantHealthy, healthy)
		})
	}
}

func TestClient_EnableAuthMethod(t *testing.T) {
	var gotBody map[string]any
	var gotToken, gotNamespace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/v1/sys/auth/approle-ci" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotToken = r.Header.Get(constants.HeaderVaultToken)
		gotNamespace = r.Header.Get(constants.HeaderVaultNamespace)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "s.token", Namespace: "team-a"})
	require.NoError(t, err)

	err = client.EnableAuthMethod(context.Background(), "/approle-ci/", MountRequest{
		Type:   "approle",
		Config: map[string]any{"listing_visibility": "hidden", "token_type": "batch"},
	})
	require.NoError(t, err)

	assert.Equal(t, "s.token", gotToken)
	assert.Equal(t, "team-a", gotNamespace)
	assert.Equal(t, "approle", gotBody["type"])
	assert.NotContains(t, gotBody, "options")
	assert.Equal(t, map[string]any{"listing_visibility": "hidden", "token_type": "batch"}, gotBody["config"])
}

func TestClient_EnableSecretsEngine_Rejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sys/mounts/kv" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["path is already in use at kv/"]}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "s.token"})
	require.NoError(t, err)

	err = client.EnableSecretsEngine(context.Background(), "kv", MountRequest{
		Type:    "kv",
		Options: map[string]any{"version": "2"},
	})
	require.Error(t, err)

	var rerr *ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusBadRequest, rerr.StatusCode)
	assert.Equal(t, "path is already in use at kv/", rerr.Detail())
	assert.Equal(t, FailureRemoteRejection, ClassifyFailure(err))
	assert.Equal(t, "path is already in use at kv/", FailureDetail(err))
}

func TestClient_EnableMount_RequiresInputs(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Token: "s.token"})
	require.NoError(t, err)

	assert.Error(t, client.EnableAuthMethod(context.Background(), "", MountRequest{Type: "approle"}))
	assert.Error(t, client.EnableAuthMethod(context.Background(), "approle", MountRequest{}))

	unauthenticated, err := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Error(t, unauthenticated.EnableSecretsEngine(context.Background(), "kv", MountRequest{Type: "kv"}))
}

func TestClient_EnableMount_ServerErrorKeepsDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errors":["plugin not found in the catalog: foo"]}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "s.token"})
	require.NoError(t, err)

	err = client.EnableSecretsEngine(context.Background(), "foo", MountRequest{Type: "foo"})
	require.Error(t, err)
	assert.True(t, consoleerrors.IsTransientRemoteOverloaded(err))
	assert.Equal(t, FailureRemoteRejection, ClassifyFailure(err))
	assert.Equal(t, "plugin not found in the catalog: foo", FailureDetail(err))
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: url, Token: "s.token"})
	require.NoError(t, err)

	err = client.EnableAuthMethod(context.Background(), "approle", MountRequest{Type: "approle"})
	require.Error(t, err)
	assert.True(t, consoleerrors.IsTransientConnection(err))
	assert.Equal(t, FailureTransport, ClassifyFailure(err))
}

func TestClient_CapabilitiesSelf(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		body  string
		want  map[string][]string
	}{
		{
			name:  "wrapped data block",
			paths: []string{"sys/auth/approle", "sys/auth/github"},
			body:  `{"data":{"sys/auth/approle":["create","sudo","update"],"sys/auth/github":["deny"]}}`,
			want: map[string][]string{
				"sys/auth/approle": {"create", "sudo", "update"},
				"sys/auth/github":  {"deny"},
			},
		},
		{
			name:  "flat layout with missing path",
			paths: []string{"sys/mounts/kv", "sys/mounts/pki"},
			body:  `{"sys/mounts/kv":["read"]}`,
			want: map[string][]string{
				"sys/mounts/kv":  {"read"},
				"sys/mounts/pki": {},
			},
		},
		{
			name:  "single path capabilities key",
			paths: []string{"sys/mounts/ssh"},
			body:  `{"capabilities":["root"]}`,
			want: map[string][]string{
				"sys/mounts/ssh": {"root"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != constants.APIPathSysCapabilitiesSelf {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				var req struct {
					Paths []string `json:"paths"`
				}
				_ = json.NewDecoder(r.Body).Decode(&req)
				if !assert.Equal(t, tt.paths, req.Paths) {
					return
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "s.token"})
			require.NoError(t, err)

			got, err := client.CapabilitiesSelf(context.Background(), tt.paths)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for path, caps := range tt.want {
				assert.ElementsMatch(t, caps, got[path].UnsortedList(), path)
			}
		})
	}
}

func TestClient_LoginJWT(t *testing.T) {
	var sawToken atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/console-jwt/login" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(constants.HeaderVaultToken) != "" {
			sawToken.Store(true)
		}
		_, _ = w.Write([]byte(`{"auth":{"client_token":"s.issued","ttl":3600}}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "s.stale"})
	require.NoError(t, err)

	token, ttl, err := client.LoginJWT(context.Background(), "console-jwt", "console", "eyJ...")
	require.NoError(t, err)
	assert.Equal(t, "s.issued", token)
	assert.Equal(t, 3600, ttl)
	assert.False(t, sawToken.Load(), "login must not send a token")

	_, _, err = client.LoginJWT(context.Background(), "", "", "jwt")
	assert.Error(t, err)
}

func TestClient_LogicalReadWriteDelete(t *testing.T) {
	store := map[string]map[string]any{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/")
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			store[path] = body
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			data, ok := store[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"errors":[]}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		case http.MethodDelete:
			delete(store, path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: "s.token"})
	require.NoError(t, err)
	ctx := context.Background()

	out, err := client.Write(ctx, "ldap-test/static-role/test-role", map[string]any{"dn": "foo"})
	require.NoError(t, err)
	assert.Nil(t, out)

	data, err := client.Read(ctx, "ldap-test/static-role/test-role")
	require.NoError(t, err)
	assert.Equal(t, "foo", data["dn"])

	require.NoError(t, client.Delete(ctx, "ldap-test/static-role/test-role"))

	_, err = client.Read(ctx, "ldap-test/static-role/test-role")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestResponseError_Detail(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{name: "errors list", body: `{"errors":["a","b"]}`, code: 400, want: "a; b"},
		{name: "plain text", body: "permission denied\n", code: 403, want: "permission denied"},
		{name: "empty body", body: "", code: 404, want: "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/sys/mounts/x", nil)
			rerr := newResponseError(req, tt.code, []byte(tt.body))
			assert.Equal(t, tt.want, rerr.Detail())
			assert.Contains(t, rerr.Error(), "/v1/sys/mounts/x")
		})
	}
}
