package transform

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/logging"
	"github.com/dc-tec/openbao-console/internal/metrics"
	"github.com/dc-tec/openbao-console/internal/openbao"
)

// Navigation routes used after a save or delete.
const (
	RouteShow = "secrets.backend.show"
	RouteList = "secrets.backend.list"
)

var (
	// ErrImmutable rejects a rename, or a type change of a transformation, on edit.
	ErrImmutable = errors.New("name and type cannot change after creation")
	// ErrBuiltin rejects edits of built-in templates and alphabets.
	ErrBuiltin = errors.New("built-in items are read-only")
)

// SaveResult reports a save attempt that passed validation.
type SaveResult struct {
	Saved   bool
	Effects []effect.Effect
}

// Service saves Transform items for one mount.
type Service struct {
	api     openbao.LogicalAPI
	backend string
	logger  logr.Logger
}

// NewService binds a Service to the Transform mount at backend.
func NewService(api openbao.LogicalAPI, backend string, logger logr.Logger) *Service {
	backend = strings.Trim(backend, "/")
	return &Service{api: api, backend: backend, logger: logger.WithValues("backend", backend)}
}

// Backend is the mount path the service writes under.
func (s *Service) Backend() string { return s.backend }

// ReadTransformation loads a transformation.
func (s *Service) ReadTransformation(ctx context.Context, name string) (Transformation, error) {
	data, err := s.api.Read(ctx, ItemPath(s.backend, ItemTransformation, name))
	if err != nil {
		return Transformation{}, err
	}
	return TransformationFromData(name, data), nil
}

// ReadRole loads a role.
func (s *Service) ReadRole(ctx context.Context, name string) (Role, error) {
	data, err := s.api.Read(ctx, ItemPath(s.backend, ItemRole, name))
	if err != nil {
		return Role{}, err
	}
	return RoleFromData(name, data), nil
}

// ReadTemplate loads a template.
func (s *Service) ReadTemplate(ctx context.Context, name string) (Template, error) {
	data, err := s.api.Read(ctx, ItemPath(s.backend, ItemTemplate, name))
	if err != nil {
		return Template{}, err
	}
	return TemplateFromData(name, data), nil
}

// ReadAlphabet loads an alphabet.
func (s *Service) ReadAlphabet(ctx context.Context, name string) (Alphabet, error) {
	data, err := s.api.Read(ctx, ItemPath(s.backend, ItemAlphabet, name))
	if err != nil {
		return Alphabet{}, err
	}
	return AlphabetFromData(name, data), nil
}

// SaveTransformation writes t, then makes every role in t.AllowedRoles list t
// and removes t from roles dropped since previous. previous is nil on create.
func (s *Service) SaveTransformation(ctx context.Context, t Transformation, previous *Transformation) (SaveResult, error) {
	if previous != nil && (previous.Name != t.Name || previous.Type != t.Type) {
		return SaveResult{}, ErrImmutable
	}
	if err := t.Validate(); err != nil {
		return SaveResult{}, err
	}

	res, ok := s.write(ctx, ItemTransformation, t.Name, t.Body())
	if !ok {
		return res, nil
	}

	var before []string
	if previous != nil {
		before = previous.AllowedRoles
	}
	added, removed := diff(before, t.AllowedRoles)

	var failed []string
	for _, role := range added {
		if err := s.updateRole(ctx, role, func(r *Role) bool { return addName(&r.Transformations, t.Name) }); err != nil {
			s.logger.Error(err, "Failed to add transformation to role", "transformation", t.Name, "role", role)
			failed = append(failed, role)
		}
	}
	for _, role := range removed {
		if err := s.updateRole(ctx, role, func(r *Role) bool { return removeName(&r.Transformations, t.Name) }); err != nil {
			s.logger.Error(err, "Failed to remove transformation from role", "transformation", t.Name, "role", role)
			failed = append(failed, role)
		}
	}
	if len(failed) > 0 {
		res.Effects = append(res.Effects, effect.Notify(effect.LevelInfo, fmt.Sprintf(
			"Transformation %s was saved, but the following roles could not be updated: %s.",
			t.Name, strings.Join(failed, ", "))))
	}
	return res, nil
}

// SaveRole writes r, then keeps allowed_roles of each referenced transformation
// in step. previous is nil on create.
func (s *Service) SaveRole(ctx context.Context, r Role, previous *Role) (SaveResult, error) {
	if previous != nil && previous.Name != r.Name {
		return SaveResult{}, ErrImmutable
	}
	if err := r.Validate(); err != nil {
		return SaveResult{}, err
	}

	res, ok := s.write(ctx, ItemRole, r.Name, r.Body())
	if !ok {
		return res, nil
	}

	var before []string
	if previous != nil {
		before = previous.Transformations
	}
	added, removed := diff(before, r.Transformations)

	var failed []string
	for _, name := range added {
		if err := s.updateTransformation(ctx, name, func(t *Transformation) bool { return addName(&t.AllowedRoles, r.Name) }); err != nil {
			s.logger.Error(err, "Failed to add role to transformation", "transformation", name, "role", r.Name)
			failed = append(failed, name)
		}
	}
	for _, name := range removed {
		if err := s.updateTransformation(ctx, name, func(t *Transformation) bool { return removeName(&t.AllowedRoles, r.Name) }); err != nil {
			s.logger.Error(err, "Failed to remove role from transformation", "transformation", name, "role", r.Name)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		res.Effects = append(res.Effects, effect.Notify(effect.LevelInfo, fmt.Sprintf(
			"Role %s was saved, but the following transformations could not be updated: %s.",
			r.Name, strings.Join(failed, ", "))))
	}
	return res, nil
}

// SaveTemplate writes a template. previous is nil on create.
func (s *Service) SaveTemplate(ctx context.Context, t Template, previous *Template) (SaveResult, error) {
	if previous != nil && previous.Name != t.Name {
		return SaveResult{}, ErrImmutable
	}
	if slices.Contains(BuiltinTemplates, t.Name) {
		return SaveResult{}, ErrBuiltin
	}
	if err := t.Validate(); err != nil {
		return SaveResult{}, err
	}
	res, _ := s.write(ctx, ItemTemplate, t.Name, t.Body())
	return res, nil
}

// SaveAlphabet writes an alphabet. previous is nil on create.
func (s *Service) SaveAlphabet(ctx context.Context, a Alphabet, previous *Alphabet) (SaveResult, error) {
	if previous != nil && previous.Name != a.Name {
		return SaveResult{}, ErrImmutable
	}
	if slices.Contains(BuiltinAlphabets, a.Name) {
		return SaveResult{}, ErrBuiltin
	}
	if err := a.Validate(); err != nil {
		return SaveResult{}, err
	}
	res, _ := s.write(ctx, ItemAlphabet, a.Name, a.Body())
	return res, nil
}

// Delete removes an item and returns to its list tab.
func (s *Service) Delete(ctx context.Context, itemType ItemType, name string) []effect.Effect {
	path := ItemPath(s.backend, itemType, name)
	if err := s.api.Delete(ctx, path); err != nil {
		s.logger.Error(err, "Failed to delete transform item", "path", path)
		return []effect.Effect{effect.Notify(effect.LevelDanger, openbao.FailureDetail(err))}
	}
	return []effect.Effect{
		effect.Notify(effect.LevelSuccess, fmt.Sprintf("Successfully deleted %s %s.", itemType, name)),
		effect.Navigate(RouteList, map[string]string{"backend": s.backend, "tab": string(itemType)}),
	}
}

// write saves one item and builds the effects of the primary save.
func (s *Service) write(ctx context.Context, itemType ItemType, name string, body map[string]any) (SaveResult, bool) {
	path := ItemPath(s.backend, itemType, name)
	if _, err := s.api.Write(ctx, path, body); err != nil {
		metrics.RecordFormSave("transform", string(itemType), metrics.ResultFailure)
		s.logger.Error(err, "Failed to save transform item", "path", path)
		return SaveResult{Effects: []effect.Effect{
			effect.Notify(effect.LevelDanger, openbao.FailureDetail(err)),
		}}, false
	}

	metrics.RecordFormSave("transform", string(itemType), metrics.ResultSuccess)
	logging.LogAuditEvent(s.logger, logging.EventTransformSave, map[string]string{
		"path":      path,
		"item_type": string(itemType),
	})
	return SaveResult{
		Saved: true,
		Effects: []effect.Effect{
			effect.Navigate(RouteShow, map[string]string{"backend": s.backend, "itemType": string(itemType), "name": name}),
		},
	}, true
}

// updateRole applies fn to a role and writes it back when fn reports a change.
// A missing role is created.
func (s *Service) updateRole(ctx context.Context, name string, fn func(*Role) bool) error {
	role, err := s.ReadRole(ctx, name)
	if err != nil {
		if !openbao.IsNotFound(err) {
			return err
		}
		role = Role{Name: name}
	}
	if !fn(&role) {
		return nil
	}
	_, err = s.api.Write(ctx, ItemPath(s.backend, ItemRole, name), role.Body())
	return err
}

// updateTransformation applies fn to a transformation and writes it back when
// fn reports a change. A missing transformation is an error.
func (s *Service) updateTransformation(ctx context.Context, name string, fn func(*Transformation) bool) error {
	t, err := s.ReadTransformation(ctx, name)
	if err != nil {
		return err
	}
	if !fn(&t) {
		return nil
	}
	_, err = s.api.Write(ctx, ItemPath(s.backend, ItemTransformation, name), t.Body())
	return err
}

func diff(before, after []string) (added, removed []string) {
	for _, n := range after {
		if !slices.Contains(before, n) {
			added = append(added, n)
		}
	}
	for _, n := range before {
		if !slices.Contains(after, n) {
			removed = append(removed, n)
		}
	}
	return added, removed
}

func addName(list *[]string, name string) bool {
	if slices.Contains(*list, name) {
		return false
	}
	*list = append(*list, name)
	return true
}

func removeName(list *[]string, name string) bool {
	i := slices.Index(*list, name)
	if i < 0 {
		return false
	}
	*list = slices.Delete(*list, i, i+1)
	return true
}
