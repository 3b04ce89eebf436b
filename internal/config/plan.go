package config

import (
	"fmt"
	"math/big"
	"os"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/dc-tec/openbao-console/internal/catalog"
	operrors "github.com/dc-tec/openbao-console/internal/errors"
	"github.com/dc-tec/openbao-console/internal/mount"
)

// Plan is a list of mounts to enable without the interactive workflow.
//
//	mount "auth" "approle" {
//	  path   = "approle-ci"
//	  config = { listing_visibility = "hidden" }
//	}
//	mount "secret" "kv" {
//	  options = { version = "2" }
//	  kv_config { max_versions = 5 }
//	}
type Plan struct {
	Mounts []PlanMount `hcl:"mount,block"`
}

// PlanMount is one mount block.
type PlanMount struct {
	Category    string        `hcl:"category,label"`
	Type        string        `hcl:"type,label"`
	Path        string        `hcl:"path,optional"`
	Description string        `hcl:"description,optional"`
	Config      cty.Value     `hcl:"config,optional"`
	Options     cty.Value     `hcl:"options,optional"`
	KVConfig    *PlanKVConfig `hcl:"kv_config,block"`
}

// PlanKVConfig overrides the KV v2 defaults.
type PlanKVConfig struct {
	MaxVersions        *int    `hcl:"max_versions,optional"`
	CASRequired        *bool   `hcl:"cas_required,optional"`
	DeleteVersionAfter *string `hcl:"delete_version_after,optional"`
}

// LoadPlan reads and parses the plan file at path.
func LoadPlan(path string) (*Plan, error) {
	src, err := os.ReadFile(path) // #nosec G304 -- operator-supplied plan path
	if err != nil {
		return nil, operrors.WrapPermanentConfig(fmt.Errorf("failed to read plan %s: %w", path, err))
	}
	return ParsePlan(path, src)
}

// ParsePlan parses a plan and checks every block's category.
func ParsePlan(filename string, src []byte) (*Plan, error) {
	var p Plan
	if err := decodeHCL(filename, src, &p); err != nil {
		return nil, err
	}
	for i, m := range p.Mounts {
		if _, err := catalog.ParseCategory(m.Category); err != nil {
			return nil, operrors.WrapPermanentConfig(fmt.Errorf("mount block %d: %w", i+1, err))
		}
	}
	return &p, nil
}

// Drafts builds one configured draft per block. Types must be pickable for
// the category, and no two blocks may share a path.
func (p *Plan) Drafts(cat *catalog.Catalog, enterprise bool) ([]mount.Draft, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	drafts := make([]mount.Draft, 0, len(p.Mounts))
	seen := make(map[string]bool, len(p.Mounts))
	for _, m := range p.Mounts {
		d, err := m.Draft(cat, enterprise)
		if err != nil {
			return nil, err
		}
		key := string(d.Category()) + ":" + d.MountPath()
		if seen[key] {
			return nil, operrors.WrapPermanentConfig(fmt.Errorf("%s path %q appears more than once", d.Category(), d.Path()))
		}
		seen[key] = true
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// Draft runs the block through the draft transitions the interactive workflow
// would take, so the result obeys the same rules.
func (m PlanMount) Draft(cat *catalog.Catalog, enterprise bool) (mount.Draft, error) {
	category, err := catalog.ParseCategory(m.Category)
	if err != nil {
		return mount.Draft{}, operrors.WrapPermanentConfig(err)
	}

	var desc catalog.Descriptor
	found := false
	for _, candidate := range cat.Pickable(category, enterprise) {
		if candidate.Type == m.Type {
			desc, found = candidate, true
			break
		}
	}
	if !found {
		return mount.Draft{}, operrors.WrapPermanentConfig(
			fmt.Errorf("%w: %q is not a %s", mount.ErrUnknownType, m.Type, category.Noun()))
	}

	d, err := mount.NewDraft(category).SelectType(desc)
	if err != nil {
		return mount.Draft{}, err
	}
	if m.Path != "" {
		if d, err = d.EditPath(m.Path); err != nil {
			return mount.Draft{}, err
		}
	}
	if d, err = d.SetDescription(m.Description); err != nil {
		return mount.Draft{}, err
	}

	config, err := ctyObjectToMap("config", m.Config)
	if err != nil {
		return mount.Draft{}, err
	}
	for _, key := range sortedKeys(config) {
		if d, err = d.SetConfig(key, config[key]); err != nil {
			return mount.Draft{}, err
		}
	}

	options, err := ctyObjectToMap("options", m.Options)
	if err != nil {
		return mount.Draft{}, err
	}
	for _, key := range sortedKeys(options) {
		if d, err = d.SetOption(key, options[key]); err != nil {
			return mount.Draft{}, err
		}
	}

	if kv := m.KVConfig; kv != nil {
		if kv.MaxVersions != nil {
			d, err = d.SetKVConfig("max_versions", *kv.MaxVersions)
		}
		if err == nil && kv.CASRequired != nil {
			d, err = d.SetKVConfig("cas_required", *kv.CASRequired)
		}
		if err == nil && kv.DeleteVersionAfter != nil {
			d, err = d.SetKVConfig("delete_version_after", *kv.DeleteVersionAfter)
		}
		if err != nil {
			return mount.Draft{}, err
		}
	}
	return d, nil
}

func ctyObjectToMap(name string, v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, operrors.WrapPermanentConfig(fmt.Errorf("%s must be an object, got %s", name, ty.FriendlyName()))
	}
	out, err := ctyToGo(v)
	if err != nil {
		return nil, operrors.WrapPermanentConfig(fmt.Errorf("%s: %w", name, err))
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// ctyToGo is the inverse of jsonToCty for the values a plan can hold.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.String):
		return v.AsString(), nil
	case ty.Equals(cty.Bool):
		return v.True(), nil
	case ty.Equals(cty.Number):
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for k, child := range v.AsValueMap() {
			goVal, err := ctyToGo(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = goVal
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for _, child := range v.AsValueSlice() {
			goVal, err := ctyToGo(child)
			if err != nil {
				return nil, err
			}
			out = append(out, goVal)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
