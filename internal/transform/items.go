// Package transform implements the item forms of the Transform secrets engine:
// transformations, roles, templates and alphabets, and keeps the cross
// references between transformations and roles in step.
package transform

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dc-tec/openbao-console/internal/validation"
)

// ItemType is one of the four kinds of Transform items.
type ItemType string

const (
	ItemTransformation ItemType = "transformation"
	ItemRole           ItemType = "role"
	ItemTemplate       ItemType = "template"
	ItemAlphabet       ItemType = "alphabet"
)

// ParseItemType converts a route segment to an ItemType. Empty means transformation.
func ParseItemType(s string) (ItemType, error) {
	switch ItemType(s) {
	case "", ItemTransformation:
		return ItemTransformation, nil
	case ItemRole, ItemTemplate, ItemAlphabet:
		return ItemType(s), nil
	default:
		return "", fmt.Errorf("unknown transform item type %q", s)
	}
}

func (t ItemType) segment() string {
	if t == ItemTransformation {
		return "transformations"
	}
	return string(t)
}

// ItemPath is the API path of a named item, relative to /v1/.
func ItemPath(backend string, itemType ItemType, name string) string {
	return fmt.Sprintf("%s/%s/%s", strings.Trim(backend, "/"), itemType.segment(), name)
}

// TransformationType is the algorithm family of a transformation.
type TransformationType string

const (
	TypeFPE          TransformationType = "fpe"
	TypeMasking      TransformationType = "masking"
	TypeTokenization TransformationType = "tokenization"
)

// Tweak sources accepted for FPE transformations.
var TweakSources = []string{"supplied", "generated", "internal"}

// Built-in templates and alphabets every Transform mount provides.
var (
	BuiltinTemplates = []string{"builtin/creditcardnumber", "builtin/socialsecuritynumber"}
	BuiltinAlphabets = []string{
		"builtin/numeric",
		"builtin/alphalower",
		"builtin/alphaupper",
		"builtin/alphanumericlower",
		"builtin/alphanumericupper",
		"builtin/alphanumeric",
	}
)

// Transformation is a transform/transformations/<name> item.
type Transformation struct {
	Name             string             `json:"name"`
	Type             TransformationType `json:"type"`
	Template         string             `json:"template,omitempty"`
	TweakSource      string             `json:"tweak_source,omitempty"`
	MaskingCharacter string             `json:"masking_character,omitempty"`
	AllowedRoles     []string           `json:"allowed_roles,omitempty"`
}

// NewTransformation returns the defaults of the create form.
func NewTransformation() Transformation {
	return Transformation{Type: TypeFPE, TweakSource: "supplied", MaskingCharacter: "*"}
}

// Fields lists the form fields shown for the transformation's type.
func (t Transformation) Fields() []string {
	fields := []string{"name", "type"}
	switch t.Type {
	case TypeFPE:
		fields = append(fields, "tweak_source", "template")
	case TypeMasking:
		fields = append(fields, "masking_character", "template")
	}
	return append(fields, "allowed_roles")
}

func (t Transformation) Validate() error {
	var v validation.Error
	v.Require("name", t.Name)
	switch t.Type {
	case TypeFPE:
		v.Require("template", t.Template)
		if !slices.Contains(TweakSources, t.TweakSource) {
			v.Add("tweak_source", fmt.Sprintf("Tweak source must be one of %s.", strings.Join(TweakSources, ", ")))
		}
	case TypeMasking:
		v.Require("template", t.Template)
		if utf8.RuneCountInString(t.MaskingCharacter) != 1 {
			v.Add("masking_character", "Masking character must be a single character.")
		}
	case TypeTokenization:
	default:
		v.Add("type", fmt.Sprintf("Type must be one of %s, %s or %s.", TypeFPE, TypeMasking, TypeTokenization))
	}
	return v.Err()
}

// Body drops the fields that do not apply to the type.
func (t Transformation) Body() map[string]any {
	body := map[string]any{
		"type":          string(t.Type),
		"allowed_roles": nonNil(t.AllowedRoles),
	}
	switch t.Type {
	case TypeFPE:
		body["template"] = t.Template
		body["tweak_source"] = t.TweakSource
	case TypeMasking:
		body["template"] = t.Template
		body["masking_character"] = t.MaskingCharacter
	}
	return body
}

// TransformationFromData decodes a read response.
func TransformationFromData(name string, data map[string]any) Transformation {
	t := Transformation{
		Name:             name,
		Type:             TransformationType(str(data, "type")),
		TweakSource:      str(data, "tweak_source"),
		MaskingCharacter: str(data, "masking_character"),
		AllowedRoles:     strs(data, "allowed_roles"),
	}
	t.Template = str(data, "template")
	// Reads return templates as a list.
	if t.Template == "" {
		if list := strs(data, "templates"); len(list) > 0 {
			t.Template = list[0]
		}
	}
	return t
}

// Role is a transform/role/<name> item.
type Role struct {
	Name            string   `json:"name"`
	Transformations []string `json:"transformations,omitempty"`
}

func (r Role) Validate() error {
	var v validation.Error
	v.Require("name", r.Name)
	return v.Err()
}

func (r Role) Body() map[string]any {
	return map[string]any{"transformations": nonNil(r.Transformations)}
}

// RoleFromData decodes a read response.
func RoleFromData(name string, data map[string]any) Role {
	return Role{Name: name, Transformations: strs(data, "transformations")}
}

// Template is a transform/template/<name> item.
type Template struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Pattern  string `json:"pattern"`
	Alphabet string `json:"alphabet,omitempty"`
}

// NewTemplate returns the defaults of the create form.
func NewTemplate() Template {
	return Template{Type: "regex"}
}

func (t Template) Validate() error {
	var v validation.Error
	v.Require("name", t.Name)
	v.Require("pattern", t.Pattern)
	if t.Pattern != "" {
		re, err := regexp.Compile(t.Pattern)
		switch {
		case err != nil:
			v.Add("pattern", fmt.Sprintf("Pattern is not a valid regular expression: %s", err))
		case re.NumSubexp() == 0:
			v.Add("pattern", "Pattern must contain at least one capture group.")
		}
	}
	if t.Type != "regex" {
		v.Add("type", "Type must be regex.")
	}
	return v.Err()
}

func (t Template) Body() map[string]any {
	body := map[string]any{"type": t.Type, "pattern": t.Pattern}
	if t.Alphabet != "" {
		body["alphabet"] = t.Alphabet
	}
	return body
}

// TemplateFromData decodes a read response.
func TemplateFromData(name string, data map[string]any) Template {
	return Template{
		Name:     name,
		Type:     str(data, "type"),
		Pattern:  str(data, "pattern"),
		Alphabet: str(data, "alphabet"),
	}
}

// Alphabet is a transform/alphabet/<name> item.
type Alphabet struct {
	Name     string `json:"name"`
	Alphabet string `json:"alphabet"`
}

func (a Alphabet) Validate() error {
	var v validation.Error
	v.Require("name", a.Name)
	v.Require("alphabet", a.Alphabet)
	if a.Alphabet != "" {
		seen := map[rune]bool{}
		for _, r := range a.Alphabet {
			if seen[r] {
				v.Add("alphabet", fmt.Sprintf("Alphabet contains %q more than once.", r))
				break
			}
			seen[r] = true
		}
		if len(seen) < 2 && !v.Has("alphabet") {
			v.Add("alphabet", "Alphabet must contain at least two characters.")
		}
	}
	return v.Err()
}

func (a Alphabet) Body() map[string]any {
	return map[string]any{"alphabet": a.Alphabet}
}

// AlphabetFromData decodes a read response.
func AlphabetFromData(name string, data map[string]any) Alphabet {
	return Alphabet{Name: name, Alphabet: str(data, "alphabet")}
}

func str(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func strs(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return nil
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
