package ldap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/logging"
	"github.com/dc-tec/openbao-console/internal/metrics"
	"github.com/dc-tec/openbao-console/internal/openbao"
)

// Navigation routes used by the role form.
const (
	RouteRoles       = "roles"
	RouteRoleDetails = "roles.role.details"
)

// ErrImmutable rejects a change to the type or name of an existing role.
var ErrImmutable = errors.New("role type and name cannot change after creation")

// SaveResult reports a save attempt that passed validation.
type SaveResult struct {
	Saved   bool
	Effects []effect.Effect
}

// Form edits one role of one LDAP secrets engine mount.
type Form struct {
	api     openbao.LogicalAPI
	backend string
	logger  logr.Logger
	role    Role
	editing bool
}

// NewCreateForm starts a form for a new role. New roles default to static.
func NewCreateForm(api openbao.LogicalAPI, backend string, logger logr.Logger) *Form {
	return &Form{
		api:     api,
		backend: backend,
		logger:  logger.WithValues("backend", backend),
		role:    Role{Type: RoleTypeStatic},
	}
}

// LoadEditForm reads an existing role and opens it for editing.
func LoadEditForm(ctx context.Context, api openbao.LogicalAPI, backend string, typ RoleType, name string, logger logr.Logger) (*Form, error) {
	probe := Role{Type: typ, Name: name}
	data, err := api.Read(ctx, probe.APIPath(backend))
	if err != nil {
		return nil, fmt.Errorf("failed to read LDAP role %s: %w", name, err)
	}
	role, err := RoleFromData(typ, name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode LDAP role %s: %w", name, err)
	}
	return &Form{
		api:     api,
		backend: backend,
		logger:  logger.WithValues("backend", backend, "role", name),
		role:    role,
		editing: true,
	}, nil
}

// Role returns the role being edited.
func (f *Form) Role() Role { return f.role }

// IsEditing reports whether the form edits an existing role.
func (f *Form) IsEditing() bool { return f.editing }

// SetRole replaces the edited values. When editing, type and name are fixed.
func (f *Form) SetRole(r Role) error {
	if f.editing && (r.Type != f.role.Type || r.Name != f.role.Name) {
		return ErrImmutable
	}
	if _, err := ParseRoleType(string(r.Type)); err != nil {
		return err
	}
	f.role = r
	return nil
}

// Save validates the role and writes it. Validation failures are returned as
// a *validation.Error before any request; a rejected write is reported through
// a danger notification.
func (f *Form) Save(ctx context.Context) (SaveResult, error) {
	if err := f.role.Validate(); err != nil {
		return SaveResult{}, err
	}

	path := f.role.APIPath(f.backend)
	kind := string(f.role.Type) + "-role"
	if _, err := f.api.Write(ctx, path, f.role.Body()); err != nil {
		metrics.RecordFormSave("ldap", kind, metrics.ResultFailure)
		f.logger.Error(err, "Failed to save LDAP role", "path", path)
		return SaveResult{Effects: []effect.Effect{
			effect.Notify(effect.LevelDanger, openbao.FailureDetail(err)),
		}}, nil
	}

	metrics.RecordFormSave("ldap", kind, metrics.ResultSuccess)
	logging.LogAuditEvent(f.logger, logging.EventLDAPRoleSaved, map[string]string{
		"path": path,
		"type": string(f.role.Type),
	})
	f.editing = true

	return SaveResult{
		Saved: true,
		Effects: []effect.Effect{
			effect.Notify(effect.LevelSuccess, fmt.Sprintf("Successfully saved the role %s.", f.role.Name)),
			effect.Navigate(RouteRoleDetails, map[string]string{"type": string(f.role.Type), "name": f.role.Name}),
		},
	}, nil
}

// Cancel discards edits and returns to the role list.
func (f *Form) Cancel() []effect.Effect {
	return []effect.Effect{effect.Navigate(RouteRoles, nil)}
}
