// Package lock implements advisory file locks for agents sharing a
// workspace.
//
// Each held lock is one JSON sentinel file under .muster/locks/. The
// sentinel appears via a create-if-absent hard link of a fully written
// temp file, so acquisition of an unheld path is a single atomic
// filesystem operation: two racing acquirers can never both succeed,
// in-process or across processes, and readers never see a partial
// record. Locks are advisory; nothing stops an agent that bypasses the
// manager.
//
// Locks belong to sessions, not agents: an agent may restart under the
// same session and keep its claims. A lock older than the expiry window
// is abandoned and silently reclaimable by anyone.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/muster/internal/util"
)

// DefaultExpiry is how old a lock may grow before any session may
// reclaim it.
const DefaultExpiry = 10 * time.Minute

// createAttempts bounds the reclaim-then-create loop when racing over an
// expired sentinel.
const createAttempts = 3

// Record is the persisted form of a held lock.
type Record struct {
	OwnerSessionID string    `json:"ownerSessionId"`
	OwnerAgentName *string   `json:"ownerAgentName"`
	FilePath       string    `json:"filePath"`
	AcquiredAt     time.Time `json:"acquiredAt"`
	Operation      string    `json:"operation"`
}

// Age returns how long ago the lock was acquired.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// Expired reports whether the lock is older than the given window.
func (r *Record) Expired(now time.Time, window time.Duration) bool {
	return r.Age(now) > window
}

// OwnerName returns the recorded agent name, or "" when none was given.
func (r *Record) OwnerName() string {
	if r.OwnerAgentName == nil {
		return ""
	}
	return *r.OwnerAgentName
}

// Result reports the outcome of an acquire attempt. A denial is an
// ordinary result, not an error; errors are reserved for storage
// failures.
type Result struct {
	Granted bool
	// Reason explains a denial: which session holds the lock and for
	// how long.
	Reason string
	// Record is the lock as persisted (the existing record on a
	// reentrant grant).
	Record *Record
}

// Manager owns the sentinel directory for one workspace.
type Manager struct {
	dir    string
	expiry time.Duration
}

// ManagerOption adjusts a Manager.
type ManagerOption func(*Manager)

// WithExpiry overrides the default lock expiry window.
func WithExpiry(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// NewManager returns a Manager rooted at dir (normally
// <workspace>/.muster/locks).
func NewManager(dir string, opts ...ManagerOption) *Manager {
	m := &Manager{dir: dir, expiry: DefaultExpiry}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Expiry returns the configured staleness window.
func (m *Manager) Expiry() time.Duration { return m.expiry }

// AcquireOption adjusts a single acquire call.
type AcquireOption func(*Record)

// WithOwnerName records which agent (not just which session) took the
// lock. Purely informational; ownership checks use the session.
func WithOwnerName(name string) AcquireOption {
	return func(r *Record) {
		if name != "" {
			r.OwnerAgentName = &name
		}
	}
}

// Acquire claims the canonical path for a session.
//
// Reentrant: if the session already holds the lock the existing record is
// returned untouched, acquiredAt included. An expired record is removed
// and the claim retried, so abandoned locks never need operator cleanup.
// A live conflict yields Granted=false with a reason naming the holder.
func (m *Manager) Acquire(resourceKey, ownerSessionID, operation string, opts ...AcquireOption) (Result, error) {
	if ownerSessionID == "" {
		return Result{}, errors.New("ownerSessionID must not be empty")
	}
	path, err := Canonicalize(resourceKey)
	if err != nil {
		return Result{}, err
	}

	rec := &Record{
		OwnerSessionID: ownerSessionID,
		FilePath:       path,
		AcquiredAt:     time.Now().UTC().Truncate(time.Second),
		Operation:      operation,
	}
	for _, opt := range opts {
		opt(rec)
	}

	sentinel := m.sentinelPath(path)
	for attempt := 0; attempt < createAttempts; attempt++ {
		created, err := m.tryCreate(sentinel, rec)
		if err != nil {
			return Result{}, err
		}
		if created {
			return Result{Granted: true, Record: rec}, nil
		}

		existing, err := readRecord(sentinel)
		switch {
		case err != nil && errors.Is(err, fs.ErrNotExist):
			// Holder vanished between create and read; try again.
			continue
		case err != nil:
			// Unparseable sentinel: treat as abandoned and reclaim.
			if rmErr := os.Remove(sentinel); rmErr != nil && !os.IsNotExist(rmErr) {
				return Result{}, fmt.Errorf("reclaiming corrupt lock: %w", rmErr)
			}
			continue
		case existing.OwnerSessionID == ownerSessionID:
			// Reentrant claim; no mutation, acquiredAt stands.
			return Result{Granted: true, Record: existing}, nil
		case existing.Expired(time.Now(), m.expiry):
			if rmErr := os.Remove(sentinel); rmErr != nil && !os.IsNotExist(rmErr) {
				return Result{}, fmt.Errorf("reclaiming expired lock: %w", rmErr)
			}
			continue
		default:
			return Result{
				Granted: false,
				Reason: fmt.Sprintf("%s is locked by session %s (held %s)",
					path, existing.OwnerSessionID, roundAge(existing.Age(time.Now()))),
				Record: existing,
			}, nil
		}
	}

	// Every attempt found the sentinel recreated under us: someone else
	// is winning the reclaim race. Report the conflict.
	if existing, err := readRecord(sentinel); err == nil {
		return Result{
			Granted: false,
			Reason: fmt.Sprintf("%s is locked by session %s (held %s)",
				path, existing.OwnerSessionID, roundAge(existing.Age(time.Now()))),
			Record: existing,
		}, nil
	}
	return Result{Granted: false, Reason: fmt.Sprintf("%s is contended", path)}, nil
}

// Release drops the session's lock on the canonical path. Returns false
// without error when the lock does not exist or belongs to another
// session; neither case mutates anything.
func (m *Manager) Release(resourceKey, ownerSessionID string) (bool, error) {
	path, err := Canonicalize(resourceKey)
	if err != nil {
		return false, err
	}

	sentinel := m.sentinelPath(path)
	rec, err := readRecord(sentinel)
	if err != nil {
		// Not held, or a corrupt sentinel with no trustworthy owner to
		// check against; the latter is left for expiry reclaim.
		return false, nil
	}
	if rec.OwnerSessionID != ownerSessionID {
		return false, nil
	}

	if err := os.Remove(sentinel); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("removing lock: %w", err)
	}
	return true, nil
}

// ReleaseAll drops every lock held by a session and returns how many were
// released. Zero locks is not an error; the operation is idempotent.
func (m *Manager) ReleaseAll(ownerSessionID string) (int, error) {
	recs, err := m.scan()
	if err != nil {
		return 0, err
	}

	released := 0
	for _, sr := range recs {
		if sr.record == nil || sr.record.OwnerSessionID != ownerSessionID {
			continue
		}
		if err := os.Remove(sr.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return released, fmt.Errorf("removing lock: %w", err)
		}
		released++
	}
	return released, nil
}

// List returns all current lock records sorted by file path. Sentinels
// that no longer parse are skipped; they will be reclaimed by the next
// acquire or cleanup that touches them.
func (m *Manager) List() ([]Record, error) {
	recs, err := m.scan()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(recs))
	for _, sr := range recs {
		if sr.record != nil {
			out = append(out, *sr.record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

// Inspect returns the record holding the canonical path, or nil when the
// path is unheld.
func (m *Manager) Inspect(resourceKey string) (*Record, error) {
	path, err := Canonicalize(resourceKey)
	if err != nil {
		return nil, err
	}
	rec, err := readRecord(m.sentinelPath(path))
	if err != nil {
		return nil, nil // absent or corrupt both count as unheld
	}
	return rec, nil
}

// CleanupExpired removes locks older than the window and returns how many
// were removed. A zero window uses the manager's configured expiry.
// Corrupt sentinels are removed too; they hold no provable claim.
func (m *Manager) CleanupExpired(window time.Duration) (int, error) {
	if window <= 0 {
		window = m.expiry
	}

	recs, err := m.scan()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, sr := range recs {
		if sr.record != nil && !sr.record.Expired(now, window) {
			continue
		}
		if err := os.Remove(sr.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("removing expired lock: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Canonicalize maps a resource key to the canonical absolute path used
// for sentinel naming and conflict detection. Relative keys are anchored
// at the current working directory. Symlinks are not resolved, to stay
// consistent with os.Getwd().
func Canonicalize(resourceKey string) (string, error) {
	if strings.TrimSpace(resourceKey) == "" {
		return "", errors.New("resource key must not be empty")
	}
	abs, err := filepath.Abs(resourceKey)
	if err != nil {
		return "", fmt.Errorf("canonicalizing %q: %w", resourceKey, err)
	}
	return filepath.Clean(abs), nil
}

// sentinelRecord pairs a sentinel path with its parsed record (nil when
// the file did not parse).
type sentinelRecord struct {
	path   string
	record *Record
}

func (m *Manager) sentinelPath(canonicalPath string) string {
	return filepath.Join(m.dir, util.PathSlug(canonicalPath)+".json")
}

// tryCreate atomically creates the sentinel with its full content by
// hard-linking a completely written temp file into place. Linking is
// create-if-absent: it fails when the sentinel exists, and a concurrent
// reader can never observe a partially written record. Returns false
// when the sentinel already exists.
func (m *Manager) tryCreate(sentinel string, rec *Record) (bool, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshaling lock: %w", err)
	}

	tmp, err := os.CreateTemp(m.dir, ".claim-*")
	if err != nil {
		return false, fmt.Errorf("creating lock: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("writing lock: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("writing lock: %w", err)
	}

	if err := os.Link(tmpName, sentinel); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock: %w", err)
	}
	return true, nil
}

func (m *Manager) scan() ([]sentinelRecord, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock directory: %w", err)
	}

	var out []sentinelRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		rec, err := readRecord(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // released while scanning
			}
			out = append(out, sentinelRecord{path: path})
			continue
		}
		out = append(out, sentinelRecord{path: path, record: rec})
	}
	return out, nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lock: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing lock %s: %w", filepath.Base(path), err)
	}
	if rec.OwnerSessionID == "" || rec.FilePath == "" {
		return nil, fmt.Errorf("parsing lock %s: missing required fields", filepath.Base(path))
	}
	return &rec, nil
}

func roundAge(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
