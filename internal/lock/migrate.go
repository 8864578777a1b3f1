package lock

import (
	"encoding/json"
	"fmt"
	"os"
)

// legacyDocument is the retired aggregate lock format: one JSON document
// holding every lock, keyed by path. It predates the sentinel-per-lock
// layout and survives only as a migration source.
type legacyDocument struct {
	Locks map[string]Record `json:"locks"`
}

// MigrateLegacy imports locks from an aggregate document into the
// sentinel directory. Paths whose sentinel already exists are skipped
// rather than overwritten; current claims always win over imported ones.
// Returns how many locks were imported.
func (m *Manager) MigrateLegacy(documentPath string) (int, error) {
	data, err := os.ReadFile(documentPath)
	if err != nil {
		return 0, fmt.Errorf("reading legacy lock document: %w", err)
	}

	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parsing legacy lock document: %w", err)
	}

	imported := 0
	for path, rec := range doc.Locks {
		if rec.OwnerSessionID == "" {
			continue // junk entry
		}
		canonical, err := Canonicalize(path)
		if err != nil {
			continue
		}
		rec := rec
		rec.FilePath = canonical

		created, err := m.tryCreate(m.sentinelPath(canonical), &rec)
		if err != nil {
			return imported, err
		}
		if created {
			imported++
		}
	}
	return imported, nil
}
