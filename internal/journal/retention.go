package journal

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

const keyTimestampLayout = "20060102T150405.000000000Z"

// RetentionPolicy bounds the archive.
type RetentionPolicy struct {
	// MaxCount is the number of archived entries to keep. 0 means unlimited.
	MaxCount int
	// MaxAge drops entries older than this. Zero means no age limit.
	MaxAge time.Duration
}

// IsZero reports whether the policy keeps everything.
func (p RetentionPolicy) IsZero() bool { return p.MaxCount <= 0 && p.MaxAge <= 0 }

// RetentionResult describes one retention pass.
type RetentionResult struct {
	Total          int
	DeletedByCount int
	DeletedByAge   int
}

// Deleted is the number of entries removed.
func (r RetentionResult) Deleted() int { return r.DeletedByCount + r.DeletedByAge }

// ApplyRetention deletes archived entries beyond MaxCount (newest kept) or
// older than MaxAge. The in-memory ring is not touched.
func (j *Journal) ApplyRetention(ctx context.Context, policy RetentionPolicy) (RetentionResult, error) {
	if j.store == nil || policy.IsZero() {
		return RetentionResult{}, nil
	}

	objects, err := j.store.List(ctx, j.prefix)
	if err != nil {
		return RetentionResult{}, fmt.Errorf("failed to list journal entries for retention: %w", err)
	}
	if len(objects) == 0 {
		return RetentionResult{}, nil
	}

	type archived struct {
		key       string
		timestamp time.Time
	}
	entries := make([]archived, 0, len(objects))
	for _, obj := range objects {
		ts, ok := ParseKeyTimestamp(obj.Key)
		if !ok {
			ts = obj.LastModified
		}
		entries = append(entries, archived{key: obj.Key, timestamp: ts})
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].timestamp.After(entries[b].timestamp)
	})

	result := RetentionResult{Total: len(entries)}
	now := j.now().UTC()
	var doomed []string
	for i, e := range entries {
		switch {
		case policy.MaxCount > 0 && i >= policy.MaxCount:
			result.DeletedByCount++
		case policy.MaxAge > 0 && now.Sub(e.timestamp) > policy.MaxAge:
			result.DeletedByAge++
		default:
			continue
		}
		doomed = append(doomed, e.key)
	}
	if len(doomed) == 0 {
		return result, nil
	}

	j.logger.Info("Applying journal retention",
		"total", result.Total,
		"byCount", result.DeletedByCount,
		"byAge", result.DeletedByAge,
	)
	if err := j.store.DeleteBatch(ctx, doomed); err != nil {
		return result, fmt.Errorf("failed to delete expired journal entries: %w", err)
	}
	return result, nil
}

// ParseKeyTimestamp extracts the timestamp from a key produced by Key.
func ParseKeyTimestamp(key string) (time.Time, bool) {
	base := strings.TrimSuffix(path.Base(key), ".json")
	stamp, _, ok := strings.Cut(base, "-")
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(keyTimestampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ParseMaxAge parses a retention age such as "720h". Empty means no limit.
func ParseMaxAge(maxAge string) (time.Duration, error) {
	if maxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(maxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid max_age duration %q: %w", maxAge, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("max_age must be a positive duration, got %v", d)
	}
	return d, nil
}
