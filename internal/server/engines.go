package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/ldap"
	"github.com/dc-tec/openbao-console/internal/openbao"
	"github.com/dc-tec/openbao-console/internal/transform"
)

// saveView is the answer to every engine item save or delete. A write
// OpenBao rejected is still a 200 with Saved false and a danger notification.
type saveView struct {
	Saved   bool            `json:"saved"`
	Effects []effect.Effect `json:"effects"`
}

func newSaveView(saved bool, effects []effect.Effect) saveView {
	if effects == nil {
		effects = []effect.Effect{}
	}
	return saveView{Saved: saved, Effects: effects}
}

// ldapRoleView renders a role in the same field names OpenBao uses.
func ldapRoleView(r ldap.Role) map[string]any {
	view := r.Body()
	view["type"] = r.Type
	view["name"] = r.Name
	view["fields"] = r.Fields()
	return view
}

// ldapRoleFromBody reads type and name from the body unless the route fixes them.
func ldapRoleFromBody(body map[string]any, typ ldap.RoleType, name string) (ldap.Role, error) {
	if typ == "" {
		raw, _ := body["type"].(string)
		if raw == "" {
			raw = string(ldap.RoleTypeStatic)
		}
		parsed, err := ldap.ParseRoleType(raw)
		if err != nil {
			return ldap.Role{}, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		typ = parsed
	}
	if name == "" {
		name, _ = body["name"].(string)
	}
	role, err := ldap.RoleFromData(typ, name, body)
	if err != nil {
		return ldap.Role{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return role, nil
}

func (s *Server) handleCreateLDAPRole(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	role, err := ldapRoleFromBody(body, "", "")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	form := ldap.NewCreateForm(s.api, mux.Vars(r)["backend"], s.logger)
	if err := form.SetRole(role); err != nil {
		writeDomainError(w, err)
		return
	}
	s.saveLDAPRole(r.Context(), w, form, http.StatusCreated)
}

func (s *Server) loadLDAPForm(w http.ResponseWriter, r *http.Request) (*ldap.Form, bool) {
	vars := mux.Vars(r)
	typ, err := ldap.ParseRoleType(vars["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	form, err := ldap.LoadEditForm(r.Context(), s.api, vars["backend"], typ, vars["name"], s.logger)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return form, true
}

func (s *Server) handleGetLDAPRole(w http.ResponseWriter, r *http.Request) {
	form, ok := s.loadLDAPForm(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ldapRoleView(form.Role()))
}

func (s *Server) handleUpdateLDAPRole(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	form, ok := s.loadLDAPForm(w, r)
	if !ok {
		return
	}

	current := form.Role()
	if raw, set := body["type"].(string); set && raw != string(current.Type) {
		writeDomainError(w, ldap.ErrImmutable)
		return
	}
	if raw, set := body["name"].(string); set && raw != current.Name {
		writeDomainError(w, ldap.ErrImmutable)
		return
	}
	role, err := ldapRoleFromBody(body, current.Type, current.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := form.SetRole(role); err != nil {
		writeDomainError(w, err)
		return
	}
	s.saveLDAPRole(r.Context(), w, form, http.StatusOK)
}

func (s *Server) saveLDAPRole(ctx context.Context, w http.ResponseWriter, form *ldap.Form, okStatus int) {
	res, err := form.Save(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := okStatus
	if !res.Saved {
		status = http.StatusOK
	}
	writeJSON(w, status, newSaveView(res.Saved, res.Effects))
}

func (s *Server) transformService(r *http.Request) (*transform.Service, transform.ItemType, string, error) {
	vars := mux.Vars(r)
	itemType, err := transform.ParseItemType(vars["itemType"])
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return transform.NewService(s.api, vars["backend"], s.logger), itemType, vars["name"], nil
}

func readTransformItem(ctx context.Context, svc *transform.Service, itemType transform.ItemType, name string) (any, error) {
	switch itemType {
	case transform.ItemRole:
		return svc.ReadRole(ctx, name)
	case transform.ItemTemplate:
		return svc.ReadTemplate(ctx, name)
	case transform.ItemAlphabet:
		return svc.ReadAlphabet(ctx, name)
	default:
		return svc.ReadTransformation(ctx, name)
	}
}

func (s *Server) handleGetTransformItem(w http.ResponseWriter, r *http.Request) {
	svc, itemType, name, err := s.transformService(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	item, err := readTransformItem(r.Context(), svc, itemType, name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handlePutTransformItem creates or updates an item. The stored item, when
// there is one, is the previous value the cross references are diffed against.
func (s *Server) handlePutTransformItem(w http.ResponseWriter, r *http.Request) {
	svc, itemType, name, err := s.transformService(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := putTransformItem(r, svc, itemType, name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newSaveView(res.Saved, res.Effects))
}

func putTransformItem(r *http.Request, svc *transform.Service, itemType transform.ItemType, name string) (transform.SaveResult, error) {
	ctx := r.Context()
	switch itemType {
	case transform.ItemRole:
		var item transform.Role
		if err := decodeJSON(r, &item); err != nil {
			return transform.SaveResult{}, err
		}
		item.Name = nameOr(item.Name, name)
		prev, err := previous(svc.ReadRole(ctx, name))
		if err != nil {
			return transform.SaveResult{}, err
		}
		return svc.SaveRole(ctx, item, prev)
	case transform.ItemTemplate:
		item := transform.NewTemplate()
		if err := decodeJSON(r, &item); err != nil {
			return transform.SaveResult{}, err
		}
		item.Name = nameOr(item.Name, name)
		prev, err := previous(svc.ReadTemplate(ctx, name))
		if err != nil {
			return transform.SaveResult{}, err
		}
		return svc.SaveTemplate(ctx, item, prev)
	case transform.ItemAlphabet:
		var item transform.Alphabet
		if err := decodeJSON(r, &item); err != nil {
			return transform.SaveResult{}, err
		}
		item.Name = nameOr(item.Name, name)
		prev, err := previous(svc.ReadAlphabet(ctx, name))
		if err != nil {
			return transform.SaveResult{}, err
		}
		return svc.SaveAlphabet(ctx, item, prev)
	default:
		item := transform.NewTransformation()
		if err := decodeJSON(r, &item); err != nil {
			return transform.SaveResult{}, err
		}
		item.Name = nameOr(item.Name, name)
		prev, err := previous(svc.ReadTransformation(ctx, name))
		if err != nil {
			return transform.SaveResult{}, err
		}
		return svc.SaveTransformation(ctx, item, prev)
	}
}

func (s *Server) handleDeleteTransformItem(w http.ResponseWriter, r *http.Request) {
	svc, itemType, name, err := s.transformService(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	effects := svc.Delete(r.Context(), itemType, name)
	deleted := len(effects) > 0 && effects[0].Notification != nil && effects[0].Notification.Level == effect.LevelSuccess
	writeJSON(w, http.StatusOK, newSaveView(deleted, effects))
}

// nameOr keeps the route name unless the body names the item, in which case
// a mismatch reaches the service as a rename.
func nameOr(body, route string) string {
	if body != "" {
		return body
	}
	return route
}

// previous turns a read into the previous value of a save: nil when the
// item does not exist yet.
func previous[T any](item T, err error) (*T, error) {
	if err != nil {
		if openbao.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
