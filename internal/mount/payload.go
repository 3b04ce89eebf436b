package mount

import (
	"fmt"
	"maps"
	"slices"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/openbao"
)

const kvType = "kv"

// VisibleFields lists the form fields shown for the draft in its current state.
// Values stored under hidden keys are kept in the draft but never sent.
func VisibleFields(d Draft) []string {
	if d.state == StateSelecting || d.mountType == "" {
		return nil
	}
	fields := []string{
		"path",
		"description",
		"config." + KeyListingVisibility,
		"config.default_lease_ttl",
		"config.max_lease_ttl",
	}
	if d.category == catalog.CategoryAuth {
		fields = append(fields, "config."+KeyTokenType)
	}
	if d.isWIF {
		fields = append(fields, "config."+KeyIdentityTokenKey)
	}
	if d.category == catalog.CategorySecret && d.mountType == kvType {
		fields = append(fields, "options."+KeyVersion)
		if isKVv2(d) {
			fields = append(fields, "kv_config.max_versions", "kv_config.cas_required", "kv_config.delete_version_after")
		}
	}
	return fields
}

// ShowsIdentityTokenKey reports whether the identity_token_key field is visible.
func ShowsIdentityTokenKey(d Draft) bool {
	return slices.Contains(VisibleFields(d), "config."+KeyIdentityTokenKey)
}

// BuildMountRequest serializes the draft into the body OpenBao expects.
func BuildMountRequest(d Draft) openbao.MountRequest {
	req := openbao.MountRequest{
		Type:        d.mountType,
		Description: d.description,
	}

	config := make(map[string]any, len(d.config))
	for key, value := range d.config {
		if value == nil {
			continue
		}
		switch key {
		case KeyIdentityTokenKey:
			if !d.isWIF || value == "" {
				continue
			}
		case KeyTokenType:
			if d.category != catalog.CategoryAuth || value == "" {
				continue
			}
		case KeyListingVisibility:
			value = listingVisibility(value)
		}
		config[key] = value
	}
	if len(config) > 0 {
		req.Config = config
	}

	if d.category == catalog.CategorySecret {
		options := make(map[string]any, len(d.options))
		for key, value := range d.options {
			if value == nil {
				continue
			}
			if key == KeyVersion && d.mountType != kvType {
				continue
			}
			options[key] = fmt.Sprint(value)
		}
		if len(options) > 0 {
			req.Options = options
		}
	}
	return req
}

// listingVisibility maps the form's checkbox onto the values OpenBao accepts.
func listingVisibility(value any) any {
	switch v := value.(type) {
	case bool:
		if v {
			return "unauth"
		}
		return "hidden"
	default:
		return v
	}
}

func isKVv2(d Draft) bool {
	return d.mountType == kvType && fmt.Sprint(d.options[KeyVersion]) == "2"
}

// KVConfigFollowUp returns the body for POST <path>/config when the draft is a
// KV v2 mount whose kv_config differs from the defaults.
func KVConfigFollowUp(d Draft) (map[string]any, bool) {
	if d.category != catalog.CategorySecret || !isKVv2(d) {
		return nil, false
	}
	defaults := DefaultKVConfig()
	changed := false
	for key, value := range d.kvConfig {
		if def, ok := defaults[key]; !ok || fmt.Sprint(def) != fmt.Sprint(value) {
			changed = true
			break
		}
	}
	if !changed {
		return nil, false
	}
	body := maps.Clone(defaults)
	maps.Copy(body, d.kvConfig)
	return body, true
}
