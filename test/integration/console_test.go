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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/journal"
	"github.com/dc-tec/openbao-console/internal/mount"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/server"
	"github.com/dc-tec/openbao-console/internal/session"
	"github.com/dc-tec/openbao-console/internal/storage"
)

const rootToken = "root"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type console struct {
	bao     *fakeOpenBao
	baoSrv  *httptest.Server
	api     *httptest.Server
	store   *session.Store
	archive *storage.MemoryStore
	journal *journal.Journal
	clock   *clock
	manager *openbao.ClientManager
}

func startConsole() *console {
	c := &console{
		bao:     newFakeOpenBao(rootToken),
		archive: storage.NewMemoryStore(),
		clock:   &clock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
	}
	c.baoSrv = httptest.NewServer(c.bao)

	c.manager = openbao.NewClientManager(openbao.ClientConfig{ThrottleDisabled: true})
	client, err := c.manager.FactoryFor(c.baoSrv.URL, nil).NewWithToken(c.baoSrv.URL, rootToken)
	Expect(err).NotTo(HaveOccurred())

	logger := logf.Log.WithName("integration")
	c.journal = journal.New(c.archive, journal.Options{Prefix: "journal", Logger: logger, Now: c.clock.Now})
	c.store = session.NewStore(func(category catalog.Category) *mount.Workflow {
		return mount.NewWorkflow(client, category, mount.Options{Logger: logger, Journal: c.journal})
	}, session.Options{IdleTimeout: 10 * time.Minute, Logger: logger, Now: c.clock.Now})

	srv := server.New(c.store, client, server.Options{Journal: c.journal, Health: client, Logger: logger})
	c.api = httptest.NewServer(srv.Handler())
	return c
}

func (c *console) stop() {
	c.api.Close()
	c.baoSrv.Close()
	c.manager.Close()
}

func (c *console) call(method, path string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.api.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	resp, err := c.api.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &out)).To(Succeed())
	}
	return resp.StatusCode, out
}

func (c *console) newDraft(category, typ string) string {
	code, body := c.call(http.MethodPost, "/v1/drafts", map[string]string{"category": category})
	Expect(code).To(Equal(http.StatusCreated))
	id := body["id"].(string)
	code, _ = c.call(http.MethodPost, "/v1/drafts/"+id+"/type", map[string]string{"type": typ})
	Expect(code).To(Equal(http.StatusOK))
	return id
}

func typeNames(body map[string]any) []string {
	var out []string
	for _, raw := range body["types"].([]any) {
		out = append(out, raw.(map[string]any)["type"].(string))
	}
	return out
}

var _ = Describe("Console API", func() {
	var c *console

	BeforeEach(func() {
		c = startConsole()
	})

	AfterEach(func() {
		c.stop()
	})

	It("hides types the token cannot mount", func() {
		c.bao.deny("sys/auth/github")

		code, body := c.call(http.MethodGet, "/v1/catalog/auth", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(typeNames(body)).To(ContainElement("approle"))
		Expect(typeNames(body)).NotTo(ContainElement("github"))
		Expect(typeNames(body)).NotTo(ContainElement("token"))
	})

	It("mounts an auth method at a custom path and journals it", func() {
		id := c.newDraft("auth", "approle")
		code, _ := c.call(http.MethodPost, "/v1/drafts/"+id+"/path", map[string]string{"path": "ci/approle"})
		Expect(code).To(Equal(http.StatusOK))
		code, _ = c.call(http.MethodPost, "/v1/drafts/"+id+"/description", map[string]string{"description": "CI pipelines"})
		Expect(code).To(Equal(http.StatusOK))

		code, body := c.call(http.MethodPost, "/v1/drafts/"+id+"/submit", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("succeeded"))
		Expect(body["outcome"]).To(HaveKeyWithValue("success", true))

		mounted, ok := c.bao.authMount("ci/approle")
		Expect(ok).To(BeTrue())
		Expect(mounted).To(HaveKeyWithValue("type", "approle"))
		Expect(mounted).To(HaveKeyWithValue("description", "CI pipelines"))

		entries, err := c.journal.List(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Path).To(Equal("ci/approle"))
		Expect(entries[0].Result).To(Equal("success"))
	})

	It("keeps the draft editable after OpenBao rejects the path", func() {
		first := c.newDraft("secret", "transit")
		code, _ := c.call(http.MethodPost, "/v1/drafts/"+first+"/submit", nil)
		Expect(code).To(Equal(http.StatusOK))

		second := c.newDraft("secret", "transit")
		code, body := c.call(http.MethodPost, "/v1/drafts/"+second+"/submit", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("configuring"))
		Expect(body["last_failure"]).To(Equal("path is already in use at transit/"))
		Expect(body["outcome"]).To(HaveKeyWithValue("success", false))

		code, _ = c.call(http.MethodPost, "/v1/drafts/"+second+"/path", map[string]string{"path": "transit-2"})
		Expect(code).To(Equal(http.StatusOK))
		code, body = c.call(http.MethodPost, "/v1/drafts/"+second+"/submit", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("succeeded"))

		_, ok := c.bao.secretMount("transit-2")
		Expect(ok).To(BeTrue())
		Expect(c.journal.Recent(0)).To(HaveLen(3))
	})

	It("configures a KV v2 mount after enabling it", func() {
		id := c.newDraft("secret", "kv")
		code, _ := c.call(http.MethodPost, "/v1/drafts/"+id+"/options", map[string]any{"version": "2"})
		Expect(code).To(Equal(http.StatusOK))
		code, _ = c.call(http.MethodPost, "/v1/drafts/"+id+"/kv-config", map[string]any{"max_versions": 3, "cas_required": true})
		Expect(code).To(Equal(http.StatusOK))

		code, body := c.call(http.MethodPost, "/v1/drafts/"+id+"/submit", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["state"]).To(Equal("succeeded"))

		cfg, ok := c.bao.stored("kv/config")
		Expect(ok).To(BeTrue())
		Expect(cfg).To(HaveKeyWithValue("cas_required", true))
		Expect(cfg).To(HaveKeyWithValue("max_versions", BeNumerically("==", 3)))
	})

	It("rejects a submit with missing fields without calling OpenBao", func() {
		id := c.newDraft("auth", "userpass")
		code, _ := c.call(http.MethodPost, "/v1/drafts/"+id+"/path", map[string]string{"path": ""})
		Expect(code).To(Equal(http.StatusOK))

		code, body := c.call(http.MethodPost, "/v1/drafts/"+id+"/submit", nil)
		Expect(code).To(Equal(http.StatusUnprocessableEntity))
		Expect(body["validation"]).NotTo(BeNil())
		_, ok := c.bao.authMount("")
		Expect(ok).To(BeFalse())
		Expect(c.journal.Recent(0)).To(BeEmpty())
	})

	It("expires idle drafts on sweep", func() {
		id := c.newDraft("auth", "approle")

		sweeper, err := session.NewSweeper(c.store, "*/5 * * * *", logf.Log.WithName("sweeper"),
			func(ctx context.Context) error {
				_, err := c.journal.ApplyRetention(ctx, journal.RetentionPolicy{MaxCount: 10})
				return err
			})
		Expect(err).NotTo(HaveOccurred())

		c.clock.Advance(11 * time.Minute)
		Expect(sweeper.RunOnce(context.Background())).To(Equal(1))

		code, _ := c.call(http.MethodGet, "/v1/drafts/"+id, nil)
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("saves and reloads an LDAP static role", func() {
		code, body := c.call(http.MethodPost, "/v1/ldap/ldap/roles", map[string]any{
			"type":            "static",
			"name":            "svc-app",
			"dn":              "cn=svc-app,ou=users,dc=example,dc=org",
			"username":        "svc-app",
			"rotation_period": "24h",
		})
		Expect(code).To(Equal(http.StatusCreated))
		Expect(body["saved"]).To(BeTrue())

		stored, ok := c.bao.stored("ldap/static-role/svc-app")
		Expect(ok).To(BeTrue())
		Expect(stored).To(HaveKeyWithValue("rotation_period", "86400s"))

		code, body = c.call(http.MethodGet, "/v1/ldap/ldap/roles/static/svc-app", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("username", "svc-app"))
		Expect(body).To(HaveKeyWithValue("rotation_period", "86400s"))
	})

	It("keeps transform roles in step with transformations", func() {
		code, body := c.call(http.MethodPut, "/v1/transform/transform/transformation/ccn", map[string]any{
			"type":          "fpe",
			"template":      "builtin/creditcardnumber",
			"tweak_source":  "internal",
			"allowed_roles": []string{"payments"},
		})
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["saved"]).To(BeTrue())

		role, ok := c.bao.stored("transform/role/payments")
		Expect(ok).To(BeTrue())
		Expect(role["transformations"]).To(ConsistOf("ccn"))

		code, body = c.call(http.MethodPut, "/v1/transform/transform/transformation/ccn", map[string]any{
			"type":          "fpe",
			"template":      "builtin/creditcardnumber",
			"tweak_source":  "internal",
			"allowed_roles": []string{},
		})
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["saved"]).To(BeTrue())

		role, _ = c.bao.stored("transform/role/payments")
		Expect(role["transformations"]).To(BeEmpty())

		code, _ = c.call(http.MethodPut, "/v1/transform/transform/transformation/ccn", map[string]any{
			"type": "masking",
		})
		Expect(code).To(Equal(http.StatusBadRequest))
	})

	It("reports readiness from OpenBao health", func() {
		code, _ := c.call(http.MethodGet, "/readyz", nil)
		Expect(code).To(Equal(http.StatusOK))
	})
})
