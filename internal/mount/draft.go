// Package mount implements the workflow for enabling an auth method or a
// secrets engine: picking a type, deriving or overriding the path, editing
// options, and submitting to OpenBao.
//
// A Draft is a value. Every transition returns a new Draft and leaves the
// receiver untouched; maps are copied before they are written.
package mount

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/validation"
)

// State is the workflow position of a draft.
type State string

const (
	StateSelecting   State = "selecting"
	StateConfiguring State = "configuring"
	StateSubmitting  State = "submitting"
	StateSucceeded   State = "succeeded"
)

// Config and option keys the workflow itself interprets.
const (
	KeyListingVisibility = "listing_visibility"
	KeyIdentityTokenKey  = "identity_token_key"
	KeyTokenType         = "token_type"
	KeyVersion           = "version"
)

// Navigation routes emitted on success.
const (
	RouteAuthMethodConfigure = "settings.auth.configure"
	RouteSecretsBackend      = "secrets.backend.index"
)

var (
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSubmitInFlight rejects a submit while another is pending for the same draft.
	ErrSubmitInFlight = errors.New("a submit is already in flight for this draft")
	// ErrCategoryMismatch rejects a type from the other mount category.
	ErrCategoryMismatch = errors.New("backend type belongs to a different mount category")
)

// TransitionError reports an event that is not allowed in the current state.
type TransitionError struct {
	Event string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s is not allowed while %s", e.Event, e.State)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Draft is an in-progress mount configuration.
type Draft struct {
	category         catalog.Category
	mountType        string
	isWIF            bool
	path             string
	pathIsUserEdited bool
	description      string
	config           map[string]any
	options          map[string]any
	kvConfig         map[string]any
	state            State
	lastFailure      string
}

// NewDraft returns an empty draft with the defaults the console starts from.
func NewDraft(category catalog.Category) Draft {
	d := Draft{
		category: category,
		state:    StateSelecting,
		config:   map[string]any{KeyListingVisibility: false},
		options:  map[string]any{},
		kvConfig: map[string]any{},
	}
	if category == catalog.CategorySecret {
		d.options[KeyVersion] = 2
		d.kvConfig = DefaultKVConfig()
	}
	return d
}

// DefaultKVConfig is the kv_config a new KV v2 draft starts with. Submitting
// these values does not trigger the follow-up config write.
func DefaultKVConfig() map[string]any {
	return map[string]any{
		"max_versions":         0,
		"cas_required":         false,
		"delete_version_after": 0,
	}
}

func (d Draft) Category() catalog.Category { return d.category }
func (d Draft) Type() string               { return d.mountType }
func (d Draft) Path() string               { return d.path }
func (d Draft) PathIsUserEdited() bool     { return d.pathIsUserEdited }
func (d Draft) Description() string        { return d.description }
func (d Draft) State() State               { return d.state }

// MountPath is the path OpenBao mounts at: Path without leading or trailing
// slashes.
func (d Draft) MountPath() string { return strings.Trim(d.path, "/") }

// LastFailure is the server-reported detail of the most recent failed submit.
func (d Draft) LastFailure() string { return d.lastFailure }

// IsWIF reports whether the selected type accepts identity_token_key.
func (d Draft) IsWIF() bool { return d.isWIF }

// Config returns a copy of the stored config, including hidden values.
func (d Draft) Config() map[string]any { return maps.Clone(d.config) }

// Options returns a copy of the stored options.
func (d Draft) Options() map[string]any { return maps.Clone(d.options) }

// KVConfig returns a copy of the stored kv_config.
func (d Draft) KVConfig() map[string]any { return maps.Clone(d.kvConfig) }

// SelectType picks a backend type. Unless the operator has edited the path,
// the path follows the type name.
func (d Draft) SelectType(desc catalog.Descriptor) (Draft, error) {
	if d.state != StateSelecting && d.state != StateConfiguring {
		return d, &TransitionError{Event: "select type", State: d.state}
	}
	if desc.Category != d.category {
		return d, fmt.Errorf("%w: %s is a %s type", ErrCategoryMismatch, desc.Type, desc.Category)
	}
	next := d
	next.mountType = desc.Type
	next.isWIF = desc.IsWIF
	if !next.pathIsUserEdited {
		next.path = desc.Type
	}
	next.state = StateConfiguring
	return next, nil
}

// EditPath sets the mount path. Once called the path belongs to the operator,
// even when the new value equals the type name.
func (d Draft) EditPath(path string) (Draft, error) {
	if d.state != StateConfiguring {
		return d, &TransitionError{Event: "edit path", State: d.state}
	}
	next := d
	next.path = path
	next.pathIsUserEdited = true
	return next, nil
}

// GoBack clears the type and returns to the picker. The path is kept.
func (d Draft) GoBack() (Draft, error) {
	if d.state != StateConfiguring {
		return d, &TransitionError{Event: "go back", State: d.state}
	}
	next := d
	next.mountType = ""
	next.isWIF = false
	next.state = StateSelecting
	return next, nil
}

// SetDescription sets the mount description.
func (d Draft) SetDescription(description string) (Draft, error) {
	if d.state != StateConfiguring {
		return d, &TransitionError{Event: "set description", State: d.state}
	}
	next := d
	next.description = description
	return next, nil
}

// SetConfig stores a config value. Setting a value already stored returns d unchanged.
func (d Draft) SetConfig(key string, value any) (Draft, error) {
	if d.state != StateConfiguring {
		return d, &TransitionError{Event: "set config", State: d.state}
	}
	next := d
	next.config = withValue(d.config, key, value)
	return next, nil
}

// SetOption stores an engine option. Setting a value already stored returns d unchanged.
func (d Draft) SetOption(key string, value any) (Draft, error) {
	if d.state != StateConfiguring {
		return d, &TransitionError{Event: "set option", State: d.state}
	}
	next := d
	next.options = withValue(d.options, key, value)
	return next, nil
}

// SetKVConfig stores a kv_config value for KV v2 mounts.
func (d Draft) SetKVConfig(key string, value any) (Draft, error) {
	if d.state != StateConfiguring {
		return d, &TransitionError{Event: "set kv config", State: d.state}
	}
	next := d
	next.kvConfig = withValue(d.kvConfig, key, value)
	return next, nil
}

func withValue(m map[string]any, key string, value any) map[string]any {
	if existing, ok := m[key]; ok && reflect.DeepEqual(existing, value) {
		return m
	}
	out := maps.Clone(m)
	if out == nil {
		out = map[string]any{}
	}
	out[key] = value
	return out
}

// Validate returns a *validation.Error listing every missing required field.
func (d Draft) Validate() error {
	var v validation.Error
	v.Require("type", d.mountType)
	v.Require("path", d.MountPath())
	return v.Err()
}

// BeginSubmit moves a valid draft to Submitting. A draft already submitting
// yields ErrSubmitInFlight.
func (d Draft) BeginSubmit() (Draft, error) {
	switch d.state {
	case StateSubmitting:
		return d, ErrSubmitInFlight
	case StateSucceeded:
		return d, &TransitionError{Event: "submit", State: d.state}
	}
	if err := d.Validate(); err != nil {
		return d, err
	}
	next := d
	next.state = StateSubmitting
	next.lastFailure = ""
	return next, nil
}

// Outcome is the result of one submit.
type Outcome struct {
	Success bool
	// Path is the mounted path on success.
	Path string
	// Detail is the server-reported error on failure.
	Detail string
}

// Succeeded builds a successful outcome.
func Succeeded(path string) Outcome { return Outcome{Success: true, Path: path} }

// Failed builds a failed outcome carrying detail verbatim.
func Failed(detail string) Outcome { return Outcome{Detail: detail} }

// Resolve applies the outcome of the in-flight submit. A failure returns the
// draft to Configuring with every field intact.
func (d Draft) Resolve(outcome Outcome) (Draft, []effect.Effect, error) {
	if d.state != StateSubmitting {
		return d, nil, &TransitionError{Event: "resolve submit", State: d.state}
	}
	next := d
	if !outcome.Success {
		next.state = StateConfiguring
		next.lastFailure = outcome.Detail
		return next, []effect.Effect{effect.Notify(effect.LevelDanger, outcome.Detail)}, nil
	}

	next.state = StateSucceeded
	route := RouteSecretsBackend
	if d.category == catalog.CategoryAuth {
		route = RouteAuthMethodConfigure
	}
	return next, []effect.Effect{
		effect.Notify(effect.LevelSuccess, SuccessMessage(d.category, d.mountType, outcome.Path)),
		effect.Navigate(route, map[string]string{"path": outcome.Path}),
	}, nil
}

// SuccessMessage is the flash text shown after a mount is enabled.
func SuccessMessage(category catalog.Category, mountType, path string) string {
	return fmt.Sprintf("Successfully mounted the %s %s at %s.", mountType, category.Noun(), path)
}
