package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/mount"
)

const opUpdate = "update"

type hclInitialize struct {
	Name string `hcl:"name,label"`
}

type hclInitializeRequest struct {
	Name string `hcl:"name,label"`

	Operation string `hcl:"operation"`
	Path      string `hcl:"path"`

	AllowFailure *bool `hcl:"allow_failure,optional"`
}

func buildInitializeBlock(label string) *hclwrite.Block {
	return gohcl.EncodeAsBlock(hclInitialize{Name: label}, "initialize")
}

func buildInitializeRequestBlock(label, operation, path string, allowFailure bool) *hclwrite.Block {
	req := hclInitializeRequest{
		Name:      label,
		Operation: operation,
		Path:      path,
	}
	if allowFailure {
		allow := true
		req.AllowFailure = &allow
	}
	return gohcl.EncodeAsBlock(req, "request")
}

// RenderSelfInitHCL renders drafts as OpenBao self-initialization stanzas, one
// initialize block per mount:
//
//	initialize "mount-approle-ci" {
//	  request "enable-approle-ci" {
//	    operation = "update"
//	    path      = "sys/auth/approle-ci"
//	    data {
//	      type = "approle"
//	    }
//	  }
//	}
//
// A KV v2 mount with non-default kv_config gets a second request writing
// <path>/config. It may fail without failing initialization, like the
// follow-up of an interactive submit.
func RenderSelfInitHCL(drafts []mount.Draft) ([]byte, error) {
	file := hclwrite.NewEmptyFile()
	body := file.Body()

	for i, d := range drafts {
		block, err := buildMountInitializeBlock(d)
		if err != nil {
			return nil, fmt.Errorf("failed to render mount %d: %w", i+1, err)
		}
		if i > 0 {
			body.AppendNewline()
		}
		body.AppendBlock(block)
	}
	return file.Bytes(), nil
}

func buildMountInitializeBlock(d mount.Draft) (*hclwrite.Block, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	path := d.MountPath()
	label := strings.ReplaceAll(path, "/", "-")

	prefix := "sys/mounts/"
	if d.Category() == catalog.CategoryAuth {
		prefix = "sys/auth/"
	}

	initBlock := buildInitializeBlock("mount-" + label)
	initBody := initBlock.Body()

	enable := buildInitializeRequestBlock("enable-"+label, opUpdate, prefix+path, false)
	data, err := jsonValueToCty(mount.BuildMountRequest(d))
	if err != nil {
		return nil, fmt.Errorf("failed to convert mount request for %q: %w", path, err)
	}
	setSelfInitRequestData(enable.Body(), data)
	initBody.AppendBlock(enable)

	if kv, ok := mount.KVConfigFollowUp(d); ok {
		follow := buildInitializeRequestBlock("configure-"+label, opUpdate, path+"/config", true)
		data, err := jsonValueToCty(kv)
		if err != nil {
			return nil, fmt.Errorf("failed to convert kv config for %q: %w", path, err)
		}
		setSelfInitRequestData(follow.Body(), data)
		initBody.AppendBlock(follow)
	}
	return initBlock, nil
}

// jsonValueToCty converts v through its JSON form so the rendered data
// matches the request body the console would send.
func jsonValueToCty(v any) (cty.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return cty.NilVal, err
	}
	return jsonToCty(decoded)
}

// setSelfInitRequestData writes object values as a "data { ... }" block with
// sorted keys; OpenBao ignores "data = { ... }" on some endpoints.
func setSelfInitRequestData(requestBody *hclwrite.Body, dataVal cty.Value) {
	if dataVal.IsNull() {
		return
	}
	if dataVal.Type().IsObjectType() || dataVal.Type().IsMapType() {
		dataBody := requestBody.AppendNewBlock("data", nil).Body()

		dataMap := dataVal.AsValueMap()
		keys := make([]string, 0, len(dataMap))
		for k := range dataMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			dataBody.SetAttributeValue(k, dataMap[k])
		}
		return
	}
	requestBody.SetAttributeValue("data", dataVal)
}

// jsonToCty converts a decoded JSON value into a cty.Value tree suitable for
// hclwrite. Numbers are rendered as strings, and nulls are dropped because
// OpenBao's HCL parsing does not accept the null literal.
func jsonToCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		obj := make(map[string]cty.Value, len(val))
		for k, raw := range val {
			if raw == nil {
				continue
			}
			child, err := jsonToCty(raw)
			if err != nil {
				return cty.NilVal, err
			}
			obj[k] = child
		}
		if len(obj) == 0 {
			return cty.EmptyObjectVal, nil
		}
		return cty.ObjectVal(obj), nil
	case []any:
		elems := make([]cty.Value, 0, len(val))
		for _, elem := range val {
			if elem == nil {
				continue
			}
			child, err := jsonToCty(elem)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, child)
		}
		if len(elems) == 0 {
			return cty.EmptyTupleVal, nil
		}
		return cty.TupleVal(elems), nil
	case string:
		return cty.StringVal(val), nil
	case bool:
		return cty.BoolVal(val), nil
	case float64:
		if val == math.Trunc(val) {
			return cty.StringVal(strconv.FormatInt(int64(val), 10)), nil
		}
		return cty.StringVal(strconv.FormatFloat(val, 'f', -1, 64)), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported JSON value type %T in self-init data", v)
	}
}
