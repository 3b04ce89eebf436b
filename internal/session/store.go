// Package session keeps the drafts of the HTTP surface. Each draft lives in
// its own mount.Workflow, addressed by a random ID, and expires after a
// period without access.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/dc-tec/openbao-console/internal/catalog"
	"github.com/dc-tec/openbao-console/internal/constants"
	"github.com/dc-tec/openbao-console/internal/metrics"
	"github.com/dc-tec/openbao-console/internal/mount"
)

var (
	// ErrNotFound is returned for unknown or expired draft IDs.
	ErrNotFound = errors.New("draft not found")
	// ErrLimitReached rejects new drafts once MaxDrafts are open.
	ErrLimitReached = errors.New("too many open drafts")
)

// WorkflowFactory starts a workflow for a new draft.
type WorkflowFactory func(category catalog.Category) *mount.Workflow

// Options configures a Store.
type Options struct {
	// IdleTimeout defaults to constants.DefaultSessionIdleTimeout.
	IdleTimeout time.Duration
	// MaxDrafts caps open drafts. 0 means unlimited.
	MaxDrafts int
	Logger    logr.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is one open draft.
type Session struct {
	ID       string
	Created  time.Time
	Workflow *mount.Workflow

	lastAccess time.Time
}

// Store is safe for concurrent use.
type Store struct {
	newWorkflow WorkflowFactory
	idleTimeout time.Duration
	maxDrafts   int
	logger      logr.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty Store.
func NewStore(factory WorkflowFactory, opts Options) *Store {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = constants.DefaultSessionIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		newWorkflow: factory,
		idleTimeout: opts.IdleTimeout,
		maxDrafts:   opts.MaxDrafts,
		logger:      opts.Logger,
		now:         opts.Now,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a draft for category.
func (s *Store) Create(category catalog.Category) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxDrafts > 0 && len(s.sessions) >= s.maxDrafts {
		return nil, ErrLimitReached
	}

	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		Created:    now,
		Workflow:   s.newWorkflow(category),
		lastAccess: now,
	}
	s.sessions[sess.ID] = sess
	metrics.SetActiveDrafts(len(s.sessions))
	s.logger.V(1).Info("Opened draft", "id", sess.ID, "category", string(category))
	return sess, nil
}

// Get returns the draft and marks it as accessed.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sess.lastAccess = s.now()
	return sess, nil
}

// Delete discards a draft.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	metrics.SetActiveDrafts(len(s.sessions))
	return nil
}

// Len is the number of open drafts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IDs lists open draft IDs, oldest first.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID < list[j].ID
		}
		return list[i].Created.Before(list[j].Created)
	})
	ids := make([]string, len(list))
	for i, sess := range list {
		ids[i] = sess.ID
	}
	return ids
}

// Sweep removes drafts idle for longer than the idle timeout and returns how
// many were removed. A draft with a submit in flight is kept.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTimeout)
	expired := 0
	for id, sess := range s.sessions {
		if !sess.lastAccess.Before(cutoff) {
			continue
		}
		if sess.Workflow.Draft().State() == mount.StateSubmitting {
			continue
		}
		delete(s.sessions, id)
		expired++
	}

	metrics.SetActiveDrafts(len(s.sessions))
	if expired > 0 {
		metrics.RecordDraftsExpired(expired)
		s.logger.Info("Expired idle drafts", "expired", expired, "open", len(s.sessions))
	}
	return expired
}
