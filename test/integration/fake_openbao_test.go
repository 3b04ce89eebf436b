//go:build integration
// +build integration

/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/dc-tec/openbao-console/internal/constants"
)

// fakeOpenBao keeps mount tables and logical storage in memory and answers
// the endpoints the console calls.
type fakeOpenBao struct {
	token string

	mu      sync.Mutex
	auth    map[string]map[string]any
	mounts  map[string]map[string]any
	logical map[string]map[string]any
	denied  map[string]bool
}

func newFakeOpenBao(token string) *fakeOpenBao {
	return &fakeOpenBao{
		token:   token,
		auth:    map[string]map[string]any{},
		mounts:  map[string]map[string]any{},
		logical: map[string]map[string]any{},
		denied:  map[string]bool{},
	}
}

func (f *fakeOpenBao) deny(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[path] = true
}

func (f *fakeOpenBao) authMount(path string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.auth[path]
	return m, ok
}

func (f *fakeOpenBao) secretMount(path string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mounts[path]
	return m, ok
}

func (f *fakeOpenBao) stored(path string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.logical[path]
	return m, ok
}

func writeErrors(w http.ResponseWriter, status int, errs ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if errs == nil {
		errs = []string{}
	}
	_ = json.NewEncoder(w).Encode(map[string][]string{"errors": errs})
}

func (f *fakeOpenBao) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == constants.APIPathSysHealth {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false}`))
		return
	}
	if r.Header.Get(constants.HeaderVaultToken) != f.token {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	var body map[string]any
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErrors(w, http.StatusBadRequest, "failed to parse JSON input: "+err.Error())
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == constants.APIPathSysCapabilitiesSelf:
		paths, _ := body["paths"].([]any)
		out := map[string][]string{}
		for _, raw := range paths {
			p, _ := raw.(string)
			if f.denied[p] {
				out[p] = []string{constants.CapabilityDeny}
			} else {
				out[p] = []string{constants.CapabilityRoot}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case strings.HasPrefix(r.URL.Path, constants.APIPathSysAuth):
		f.enable(w, f.auth, strings.TrimPrefix(r.URL.Path, constants.APIPathSysAuth), body)
	case strings.HasPrefix(r.URL.Path, constants.APIPathSysMounts):
		f.enable(w, f.mounts, strings.TrimPrefix(r.URL.Path, constants.APIPathSysMounts), body)
	default:
		f.serveLogical(w, r, strings.TrimPrefix(r.URL.Path, constants.APIPathPrefix), body)
	}
}

func (f *fakeOpenBao) enable(w http.ResponseWriter, table map[string]map[string]any, path string, body map[string]any) {
	path = strings.Trim(path, "/")
	for existing := range table {
		if existing == path || strings.HasPrefix(path, existing+"/") || strings.HasPrefix(existing, path+"/") {
			writeErrors(w, http.StatusBadRequest, "path is already in use at "+path+"/")
			return
		}
	}
	table[path] = body
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeOpenBao) serveLogical(w http.ResponseWriter, r *http.Request, path string, body map[string]any) {
	switch r.Method {
	case http.MethodGet:
		data, ok := f.logical[path]
		if !ok {
			writeErrors(w, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	case http.MethodPost, http.MethodPut:
		f.logical[path] = body
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(f.logical, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeErrors(w, http.StatusMethodNotAllowed, "unsupported operation")
	}
}
