// Package catalog is the static registry of auth method and secrets engine types
// the console can mount.
package catalog

import (
	"fmt"
	"slices"
	"sync"
)

// Category distinguishes auth methods from secrets engines.
type Category string

const (
	CategoryAuth   Category = "auth"
	CategorySecret Category = "secret"
)

// ParseCategory converts user input to a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryAuth, CategorySecret:
		return Category(s), nil
	default:
		return "", fmt.Errorf("unknown mount category %q (expected %q or %q)", s, CategoryAuth, CategorySecret)
	}
}

// Noun is the human word for mounts of this category.
func (c Category) Noun() string {
	if c == CategoryAuth {
		return "auth method"
	}
	return "secrets engine"
}

// Descriptor describes one mountable backend type. Descriptors are values; the
// catalog never hands out references into its own table.
type Descriptor struct {
	Type             string   `json:"type"`
	DisplayName      string   `json:"displayName"`
	Category         Category `json:"mountCategory"`
	IsWIF            bool     `json:"isWIF"`
	IsEnterpriseOnly bool     `json:"isEnterpriseOnly"`
	// DefaultMounted types exist on every server and are never offered in the picker.
	DefaultMounted bool `json:"-"`
}

// Catalog is an immutable, ordered set of descriptors.
type Catalog struct {
	entries []Descriptor
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog. It is built once and never mutated.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = New(builtinDescriptors())
	})
	return defaultCatalog
}

// New builds a catalog from descriptors. The slice is copied.
func New(entries []Descriptor) *Catalog {
	return &Catalog{entries: slices.Clone(entries)}
}

// All returns every descriptor in catalog order.
func (c *Catalog) All() []Descriptor {
	return slices.Clone(c.entries)
}

// FilterByCategory returns the descriptors of one category, including
// default-mounted ones. Enterprise-only types are dropped unless enterprise is set.
func (c *Catalog) FilterByCategory(category Category, enterprise bool) []Descriptor {
	out := make([]Descriptor, 0, len(c.entries))
	for _, d := range c.entries {
		if d.Category != category {
			continue
		}
		if d.IsEnterpriseOnly && !enterprise {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Pickable returns the types an operator may select when enabling a new mount.
func (c *Catalog) Pickable(category Category, enterprise bool) []Descriptor {
	return slices.DeleteFunc(c.FilterByCategory(category, enterprise), func(d Descriptor) bool {
		return d.DefaultMounted
	})
}

// Lookup finds a descriptor by category and type.
func (c *Catalog) Lookup(category Category, typ string) (Descriptor, bool) {
	for _, d := range c.entries {
		if d.Category == category && d.Type == typ {
			return d, true
		}
	}
	return Descriptor{}, false
}

// WIFTypes lists the secrets engine types that accept identity_token_key.
func (c *Catalog) WIFTypes() []string {
	var out []string
	for _, d := range c.entries {
		if d.IsWIF {
			out = append(out, d.Type)
		}
	}
	return out
}

// TokenTypes returns the token_type choices offered for auth methods. The first
// entry is the empty "unset" choice; there is no default.
func TokenTypes() []string {
	return []string{"", "default-service", "default-batch", "batch", "service"}
}

// IsValidTokenType reports whether v is one of TokenTypes.
func IsValidTokenType(v string) bool {
	return slices.Contains(TokenTypes(), v)
}
