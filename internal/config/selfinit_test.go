package config

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/mount"
	"github.com/dc-tec/openbao-console/internal/validation"
)

type renderedFile struct {
	Initialize []renderedInitialize `hcl:"initialize,block"`
}

type renderedInitialize struct {
	Name     string            `hcl:"name,label"`
	Requests []renderedRequest `hcl:"request,block"`
}

type renderedRequest struct {
	Name         string        `hcl:"name,label"`
	Operation    string        `hcl:"operation"`
	Path         string        `hcl:"path"`
	AllowFailure *bool         `hcl:"allow_failure,optional"`
	Data         *renderedData `hcl:"data,block"`
}

type renderedData struct {
	Remain hcl.Body `hcl:",remain"`
}

func (d *renderedData) values(t *testing.T) map[string]cty.Value {
	t.Helper()
	attrs, diags := d.Remain.JustAttributes()
	require.False(t, diags.HasErrors(), diags.Error())
	out := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		require.False(t, diags.HasErrors(), diags.Error())
		out[name] = v
	}
	return out
}

func parseRendered(t *testing.T, src []byte) renderedFile {
	t.Helper()
	file, diags := hclparse.NewParser().ParseHCL(src, "selfinit.hcl")
	require.False(t, diags.HasErrors(), "%s\n%s", diags.Error(), src)
	var out renderedFile
	diags = gohcl.DecodeBody(file.Body, nil, &out)
	require.False(t, diags.HasErrors(), "%s\n%s", diags.Error(), src)
	return out
}

func TestRenderSelfInitHCL(t *testing.T) {
	plan, err := ParsePlan("plan.hcl", []byte(examplePlan))
	require.NoError(t, err)
	drafts, err := plan.Drafts(nil, false)
	require.NoError(t, err)

	src, err := RenderSelfInitHCL(drafts)
	require.NoError(t, err)
	rendered := parseRendered(t, src)
	require.Len(t, rendered.Initialize, 3)

	approle := rendered.Initialize[0]
	assert.Equal(t, "mount-approle-ci", approle.Name)
	require.Len(t, approle.Requests, 1)
	req := approle.Requests[0]
	assert.Equal(t, "enable-approle-ci", req.Name)
	assert.Equal(t, "update", req.Operation)
	assert.Equal(t, "sys/auth/approle-ci", req.Path)
	assert.Nil(t, req.AllowFailure)
	require.NotNil(t, req.Data)
	data := req.Data.values(t)
	assert.Equal(t, "approle", data["type"].AsString())
	assert.Equal(t, "CI pipelines", data["description"].AsString())
	config := data["config"].AsValueMap()
	assert.Equal(t, "hidden", config["listing_visibility"].AsString())
	assert.Equal(t, "1h", config["default_lease_ttl"].AsString())

	kv := rendered.Initialize[1]
	assert.Equal(t, "mount-team-kv", kv.Name)
	require.Len(t, kv.Requests, 2)
	assert.Equal(t, "sys/mounts/team/kv", kv.Requests[0].Path)
	options := kv.Requests[0].Data.values(t)["options"].AsValueMap()
	assert.Equal(t, "2", options["version"].AsString())

	follow := kv.Requests[1]
	assert.Equal(t, "configure-team-kv", follow.Name)
	assert.Equal(t, "team/kv/config", follow.Path)
	require.NotNil(t, follow.AllowFailure)
	assert.True(t, *follow.AllowFailure)
	kvData := follow.Data.values(t)
	assert.Equal(t, "5", kvData["max_versions"].AsString())
	assert.True(t, kvData["cas_required"].True())
	assert.Equal(t, "0", kvData["delete_version_after"].AsString())

	transit := rendered.Initialize[2]
	require.Len(t, transit.Requests, 1)
	assert.Equal(t, "sys/mounts/transit", transit.Requests[0].Path)
}

func TestRenderSelfInitHCLRejectsIncompleteDraft(t *testing.T) {
	_, err := RenderSelfInitHCL([]mount.Draft{mount.NewDraft(catalog.CategorySecret)})
	require.Error(t, err)
	_, ok := validation.As(err)
	assert.True(t, ok)
}

func TestRenderSelfInitHCLEmpty(t *testing.T) {
	src, err := RenderSelfInitHCL(nil)
	require.NoError(t, err)
	assert.Empty(t, parseRendered(t, src).Initialize)
}

func TestJSONToCtyDropsNulls(t *testing.T) {
	v, err := jsonToCty(map[string]any{
		"a": nil,
		"b": []any{nil, "x"},
		"c": 1.5,
		"d": float64(3),
	})
	require.NoError(t, err)
	m := v.AsValueMap()
	_, hasA := m["a"]
	assert.False(t, hasA)
	assert.Equal(t, 1, m["b"].LengthInt())
	assert.Equal(t, "1.5", m["c"].AsString())
	assert.Equal(t, "3", m["d"].AsString())

	_, err = jsonToCty(struct{}{})
	require.Error(t, err)
}
