// Package catalog indexes a backend's owned books by identity.
package catalog

import (
	"strings"

	"github.com/drallgood/bookrequest/internal/models"
)

type entry struct {
	key    string
	record models.OwnedRecord
}

// Index maps identities to ownership state for one backend
type Index struct {
	byKey   map[string]int
	entries []entry
}

// Build indexes owned records. Records without an identity or a positive id are
// skipped; a later record replaces an earlier one with the same identity.
func Build(records []models.OwnedRecord) *Index {
	idx := &Index{byKey: make(map[string]int, len(records))}
	for _, rec := range records {
		if rec.ID <= 0 {
			continue
		}
		key := rec.Identity()
		if key == "" {
			continue
		}
		if i, ok := idx.byKey[key]; ok {
			idx.entries[i].record = rec
			continue
		}
		idx.byKey[key] = len(idx.entries)
		idx.entries = append(idx.entries, entry{key: key, record: rec})
	}
	return idx
}

// Len returns the number of indexed identities
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Lookup returns the ownership state for key
func (idx *Index) Lookup(key string) (models.ExistingInfo, bool) {
	if idx == nil || key == "" {
		return models.ExistingInfo{}, false
	}
	i, ok := idx.byKey[key]
	if !ok {
		return models.ExistingInfo{}, false
	}
	rec := idx.entries[i].record
	return models.ExistingInfo{ID: rec.ID, Monitored: rec.Monitored, HasFile: rec.HasFile}, true
}

// Match is an owned record matched by a text search
type Match struct {
	Key    string
	Record models.OwnedRecord
}

// Match returns the indexed records whose title, author, ISBN-13 or ISBN contain
// term, case-insensitively, in catalog order. A blank term matches nothing.
func (idx *Index) Match(term string) []Match {
	needle := strings.ToLower(strings.TrimSpace(term))
	if idx == nil || needle == "" {
		return nil
	}
	var out []Match
	for _, e := range idx.entries {
		r := e.record
		author := r.Author
		if author == models.UnknownAuthor {
			author = ""
		}
		for _, field := range [...]string{r.Title, author, r.ISBN13, r.ISBN} {
			if field != "" && strings.Contains(strings.ToLower(field), needle) {
				out = append(out, Match{Key: e.key, Record: r})
				break
			}
		}
	}
	return out
}
