package server

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/effect"
	"github.com/dc-tec/openbao-console/internal/journal"
	"github.com/dc-tec/openbao-console/internal/mount"
	"github.com/dc-tec/openbao-console/internal/session"
	"github.com/dc-tec/openbao-console/internal/validation"
)

// DraftView is the JSON form of a draft.
type DraftView struct {
	ID               string            `json:"id"`
	Category         catalog.Category  `json:"category"`
	State            mount.State       `json:"state"`
	Type             string            `json:"type,omitempty"`
	Path             string            `json:"path"`
	PathIsUserEdited bool              `json:"path_is_user_edited"`
	Description      string            `json:"description,omitempty"`
	IsWIF            bool              `json:"is_wif"`
	Fields           []string          `json:"fields"`
	Config           map[string]any    `json:"config"`
	Options          map[string]any    `json:"options"`
	KVConfig         map[string]any    `json:"kv_config"`
	LastFailure      string            `json:"last_failure,omitempty"`
	Validation       *validation.Error `json:"validation,omitempty"`
	Effects          []effect.Effect   `json:"effects,omitempty"`
	Outcome          *OutcomeView      `json:"outcome,omitempty"`
}

// OutcomeView reports the result of a submit. A rejected mount is still a
// 200 answer; the failure is in Detail and in a danger notification.
type OutcomeView struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func newDraftView(id string, d mount.Draft) DraftView {
	fields := mount.VisibleFields(d)
	if fields == nil {
		fields = []string{}
	}
	return DraftView{
		ID:               id,
		Category:         d.Category(),
		State:            d.State(),
		Type:             d.Type(),
		Path:             d.Path(),
		PathIsUserEdited: d.PathIsUserEdited(),
		Description:      d.Description(),
		IsWIF:            d.IsWIF(),
		Fields:           fields,
		Config:           d.Config(),
		Options:          d.Options(),
		KVConfig:         d.KVConfig(),
		LastFailure:      d.LastFailure(),
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	category, err := catalog.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	types, err := mount.FilterPickable(r.Context(), s.api, s.catalog, category, s.enterprise)
	if err != nil {
		s.logger.Info("Capability check failed; listing all types", "error", err.Error())
	}
	if types == nil {
		types = []catalog.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "types": types})
}

type createDraftRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	category, err := catalog.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.store.Create(category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/drafts/"+sess.ID)
	writeJSON(w, http.StatusCreated, newDraftView(sess.ID, sess.Workflow.Draft()))
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ids": s.store.IDs()})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(sess.ID, sess.Workflow.Draft()))
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDraftTypes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	types := sess.Workflow.Pickable(r.Context())
	if types == nil {
		types = []catalog.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}

// transition runs one workflow step and answers with the resulting draft.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(*mount.Workflow) (mount.Draft, error)) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	d, err := fn(sess.Workflow)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(sess.ID, d))
}

type selectTypeRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleSelectType(w http.ResponseWriter, r *http.Request) {
	var req selectTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	s.transition(w, r, func(wf *mount.Workflow) (mount.Draft, error) { return wf.SelectType(req.Type) })
}

type editPathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleEditPath(w http.ResponseWriter, r *http.Request) {
	var req editPathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	s.transition(w, r, func(wf *mount.Workflow) (mount.Draft, error) { return wf.EditPath(req.Path) })
}

type descriptionRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleSetDescription(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	s.transition(w, r, func(wf *mount.Workflow) (mount.Draft, error) { return wf.SetDescription(req.Description) })
}

func (s *Server) handleGoBack(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, (*mount.Workflow).GoBack)
}

type valuesTarget int

const (
	valuesConfig valuesTarget = iota
	valuesOptions
	valuesKVConfig
)

// handleSetValues applies every key of a JSON object, in key order. A null
// value clears the key from what is sent.
func (s *Server) handleSetValues(target valuesTarget) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var values map[string]any
		if err := decodeJSON(r, &values); err != nil {
			writeDomainError(w, err)
			return
		}
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		s.transition(w, r, func(wf *mount.Workflow) (mount.Draft, error) {
			d := wf.Draft()
			for _, key := range keys {
				var err error
				switch target {
				case valuesConfig:
					d, err = wf.SetConfig(key, values[key])
				case valuesOptions:
					d, err = wf.SetOption(key, values[key])
				case valuesKVConfig:
					d, err = wf.SetKVConfig(key, values[key])
				}
				if err != nil {
					return d, err
				}
			}
			return d, nil
		})
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res, err := sess.Workflow.Submit(r.Context())
	if err != nil {
		if verr, isValidation := validation.As(err); isValidation {
			view := newDraftView(sess.ID, res.Draft)
			view.Validation = verr
			writeJSON(w, http.StatusUnprocessableEntity, view)
			return
		}
		writeDomainError(w, err)
		return
	}
	view := newDraftView(sess.ID, res.Draft)
	view.Effects = res.Effects
	view.Outcome = &OutcomeView{Success: res.Outcome.Success, Path: res.Outcome.Path, Detail: res.Outcome.Detail}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest))
			return
		}
		limit = n
	}
	entries := []journal.Entry{}
	if s.journal != nil {
		entries = append(entries, s.journal.Recent(limit)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
