package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dc-tec/openbao-console/internal/catalog"
	operrors "github.com/dc-tec/openbao-console/internal/errors"
	"github.com/dc-tec/openbao-console/internal/mount"
)

const examplePlan = `
mount "auth" "approle" {
  path        = "approle-ci"
  description = "CI pipelines"
  config = {
    listing_visibility = "hidden"
    default_lease_ttl  = "1h"
  }
}

mount "secret" "kv" {
  path    = "team/kv"
  options = { version = "2" }
  kv_config {
    max_versions = 5
    cas_required = true
  }
}

mount "secret" "transit" {}
`

func TestParsePlanDrafts(t *testing.T) {
	plan, err := ParsePlan("plan.hcl", []byte(examplePlan))
	require.NoError(t, err)
	require.Len(t, plan.Mounts, 3)

	drafts, err := plan.Drafts(nil, false)
	require.NoError(t, err)
	require.Len(t, drafts, 3)

	approle := drafts[0]
	assert.Equal(t, catalog.CategoryAuth, approle.Category())
	assert.Equal(t, "approle", approle.Type())
	assert.Equal(t, "approle-ci", approle.Path())
	assert.True(t, approle.PathIsUserEdited())
	assert.Equal(t, "CI pipelines", approle.Description())
	assert.Equal(t, mount.StateConfiguring, approle.State())
	assert.Equal(t, "hidden", approle.Config()["listing_visibility"])
	assert.Equal(t, "1h", approle.Config()["default_lease_ttl"])

	kv := drafts[1]
	assert.Equal(t, "team/kv", kv.Path())
	assert.Equal(t, "2", kv.Options()["version"])
	assert.Equal(t, 5, kv.KVConfig()["max_versions"])
	assert.Equal(t, true, kv.KVConfig()["cas_required"])
	_, follow := mount.KVConfigFollowUp(kv)
	assert.True(t, follow)

	transit := drafts[2]
	assert.Equal(t, "transit", transit.Path())
	assert.False(t, transit.PathIsUserEdited())
}

func TestPlanDraftsRejects(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
		is      error
	}{
		{name: "never pickable", src: `mount "auth" "token" {}`, wantErr: "not a auth method", is: mount.ErrUnknownType},
		{name: "wrong category", src: `mount "auth" "kv" {}`, is: mount.ErrUnknownType},
		{name: "enterprise only", src: `mount "auth" "saml" {}`, is: mount.ErrUnknownType},
		{name: "duplicate path", src: "mount \"secret\" \"kv\" {}\nmount \"secret\" \"kv\" {}\n", wantErr: "appears more than once"},
		{name: "config not an object", src: `mount "secret" "kv" { config = "x" }`, wantErr: "config must be an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan("plan.hcl", []byte(tt.src))
			require.NoError(t, err)
			_, err = plan.Drafts(catalog.Default(), false)
			require.Error(t, err)
			assert.True(t, operrors.IsPermanent(err))
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			}
		})
	}
}

func TestPlanEnterpriseTypes(t *testing.T) {
	plan, err := ParsePlan("plan.hcl", []byte(`mount "auth" "saml" {}`))
	require.NoError(t, err)
	drafts, err := plan.Drafts(nil, true)
	require.NoError(t, err)
	assert.Equal(t, "saml", drafts[0].Type())
}

func TestParsePlanErrors(t *testing.T) {
	_, err := ParsePlan("plan.hcl", []byte(`mount "database" "kv" {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mount category")

	_, err = ParsePlan("plan.hcl", []byte(`mount "secret" "kv" { bogus = 1 }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported argument")

	_, err = ParsePlan("plan.hcl", []byte(`mount "secret" { }`))
	require.Error(t, err)
	assert.True(t, operrors.IsPermanent(err))
}

func TestPlanDraftCanSeedWorkflow(t *testing.T) {
	plan, err := ParsePlan("plan.hcl", []byte(`mount "auth" "userpass" { path = "people" }`))
	require.NoError(t, err)
	drafts, err := plan.Drafts(nil, false)
	require.NoError(t, err)

	w := mount.NewWorkflow(nil, catalog.CategoryAuth, mount.Options{Draft: &drafts[0]})
	assert.Equal(t, "people", w.Draft().Path())
	assert.Equal(t, "userpass", w.Draft().Type())
}
