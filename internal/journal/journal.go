// Package journal records finished mount submissions. Entries are kept in a
// bounded in-memory ring and, when a BlobStore is configured, archived as one
// JSON object per entry.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/dc-tec/openbao-console/internal/interfaces"
	"github.com/dc-tec/openbao-console/internal/metrics"
)

const (
	// DefaultCapacity bounds the in-memory ring.
	DefaultCapacity = 256
	// DefaultPrefix is the object key prefix for archived entries.
	DefaultPrefix = "journal/"
)

// Entry is one finished submit.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	Description string    `json:"description,omitempty"`
	Result      string    `json:"result"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Options configures a Journal.
type Options struct {
	Capacity int
	Prefix   string
	Logger   logr.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Journal is safe for concurrent use.
type Journal struct {
	mu       sync.Mutex
	entries  []Entry
	next     int
	full     bool
	store    interfaces.BlobStore
	prefix   string
	logger   logr.Logger
	now      func() time.Time
	capacity int
}

// New creates a Journal. store may be nil, in which case entries only live in memory.
func New(store interfaces.BlobStore, opts Options) *Journal {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Journal{
		entries:  make([]Entry, opts.Capacity),
		store:    store,
		prefix:   opts.Prefix,
		logger:   opts.Logger,
		now:      opts.Now,
		capacity: opts.Capacity,
	}
}

// Append stamps the entry with an ID and timestamp, records it in memory and
// archives it. The in-memory record is kept even when archiving fails.
func (j *Journal) Append(ctx context.Context, entry Entry) error {
	entry.ID = uuid.NewString()
	entry.Timestamp = j.now().UTC()

	j.mu.Lock()
	j.entries[j.next] = entry
	j.next = (j.next + 1) % j.capacity
	if j.next == 0 {
		j.full = true
	}
	j.mu.Unlock()

	if j.store == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	key := j.Key(entry)
	if err := j.store.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		metrics.RecordJournalUpload(metrics.ResultFailure)
		return fmt.Errorf("failed to archive journal entry %s: %w", entry.ID, err)
	}
	metrics.RecordJournalUpload(metrics.ResultSuccess)
	j.logger.V(1).Info("Archived mount journal entry", "key", key, "path", entry.Path, "result", entry.Result)
	return nil
}

// Key returns the object key an entry is archived under. Keys sort by time.
func (j *Journal) Key(entry Entry) string {
	ts := entry.Timestamp.UTC()
	return fmt.Sprintf("%s%s/%s-%s.json", j.prefix, ts.Format("2006/01/02"), ts.Format(keyTimestampLayout), entry.ID)
}

// Recent returns up to n entries, newest first. n <= 0 returns all retained entries.
func (j *Journal) Recent(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	size := j.next
	if j.full {
		size = j.capacity
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (j.next - i + j.capacity) % j.capacity
		out = append(out, j.entries[idx])
	}
	return out
}

// List reads archived entries for the given UTC day (nil lists every day),
// oldest first.
func (j *Journal) List(ctx context.Context, day *time.Time) ([]Entry, error) {
	if j.store == nil {
		return nil, nil
	}

	prefix := j.prefix
	if day != nil {
		prefix += day.UTC().Format("2006/01/02") + "/"
	}

	objects, err := j.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}

	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		entry, err := j.load(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (j *Journal) load(ctx context.Context, key string) (Entry, error) {
	rc, err := j.store.Download(ctx, key)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read journal entry %s: %w", key, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	var entry Entry
	if err := json.NewDecoder(rc).Decode(&entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode journal entry %s: %w", key, err)
	}
	return entry, nil
}
