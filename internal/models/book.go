// Package models holds the book records exchanged with the backends and the unified
// search results built from them.
package models

import (
	"encoding/json"
	"strings"

	"github.com/drallgood/bookrequest/internal/identity"
)

// Backend names one of the two configured instances
type Backend string

const (
	BackendEbooks     Backend = "ebooks"
	BackendAudiobooks Backend = "audiobooks"
)

// ParseBackend accepts the instance names used by the API and CLI
func ParseBackend(s string) (Backend, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ebooks", "ebook":
		return BackendEbooks, true
	case "audiobooks", "audiobook", "audio":
		return BackendAudiobooks, true
	}
	return "", false
}

// IDs are the identifying values shared by lookup and owned records
type IDs struct {
	ForeignID   string `json:"foreignBookId,omitempty"`
	GoodreadsID string `json:"goodreadsId,omitempty"`
	ISBN13      string `json:"isbn13,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	ASIN        string `json:"asin,omitempty"`
}

func extractIDs(r BookRecord) IDs {
	return IDs{
		ForeignID:   r.String("foreignBookId"),
		GoodreadsID: r.String("goodreadsId"),
		ISBN13:      r.String("isbn13"),
		ISBN:        r.String("isbn"),
		ASIN:        r.String("asin"),
	}
}

// authorOf prefers authorTitle, then authorName, then the nested author object
func authorOf(r BookRecord) string {
	if v := strings.TrimSpace(r.String("authorTitle")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.String("authorName")); v != "" {
		return v
	}
	if a := r.Object("author"); a != nil {
		if v := strings.TrimSpace(a.String("authorName")); v != "" {
			return v
		}
		if v := strings.TrimSpace(a.String("name")); v != "" {
			return v
		}
	}
	return UnknownAuthor
}

func identityOf(title, author string, ids IDs) string {
	if author == UnknownAuthor {
		author = ""
	}
	return identity.Resolve(identity.Fields{
		ForeignID:   ids.ForeignID,
		GoodreadsID: ids.GoodreadsID,
		ISBN13:      ids.ISBN13,
		ISBN:        ids.ISBN,
		ASIN:        ids.ASIN,
		Title:       title,
		Author:      author,
	})
}

// LookupRecord is one result of a backend's remote metadata search. Raw holds the
// complete object as returned and is what gets replayed on create.
type LookupRecord struct {
	Title  string
	Author string
	IDs
	Raw BookRecord
}

// NewLookupRecord extracts the known fields from a raw lookup object
func NewLookupRecord(raw BookRecord) LookupRecord {
	if raw == nil {
		raw = BookRecord{}
	}
	return LookupRecord{
		Title:  strings.TrimSpace(raw.String("title")),
		Author: authorOf(raw),
		IDs:    extractIDs(raw),
		Raw:    raw,
	}
}

// Identity returns the record's identity key, "" when unmatchable
func (r LookupRecord) Identity() string {
	return identityOf(r.Title, r.Author, r.IDs)
}

// MarshalJSON emits the raw backend object
func (r LookupRecord) MarshalJSON() ([]byte, error) {
	if r.Raw != nil {
		return json.Marshal(map[string]any(r.Raw))
	}
	return json.Marshal(struct {
		Title  string `json:"title,omitempty"`
		Author string `json:"authorTitle,omitempty"`
		IDs
	}{r.Title, r.Author, r.IDs})
}

// UnmarshalJSON accepts a raw backend object, as echoed back by API clients
func (r *LookupRecord) UnmarshalJSON(data []byte) error {
	raw, err := decodeBytes(data)
	if err != nil {
		return err
	}
	*r = NewLookupRecord(raw)
	return nil
}

// OwnedRecord is a book already present in a backend's catalog
type OwnedRecord struct {
	ID     int
	Title  string
	Author string
	IDs
	Monitored bool
	HasFile   bool
}

// NewOwnedRecord extracts catalog state from a raw book object. Any one piece of
// file evidence is enough for HasFile.
func NewOwnedRecord(raw BookRecord) OwnedRecord {
	hasFile := raw.Int("bookFileId") > 0
	if f := raw.Object("bookFile"); f != nil && f.Int("id") > 0 {
		hasFile = true
	}
	if s := raw.Object("statistics"); s != nil {
		if s.Int("bookFileCount") > 0 || toFloat(s["sizeOnDisk"]) > 0 {
			hasFile = true
		}
	}
	return OwnedRecord{
		ID:        raw.Int("id"),
		Title:     strings.TrimSpace(raw.String("title")),
		Author:    authorOf(raw),
		IDs:       extractIDs(raw),
		Monitored: raw.Bool("monitored"),
		HasFile:   hasFile,
	}
}

// Identity returns the record's identity key, "" when unmatchable
func (r OwnedRecord) Identity() string {
	return identityOf(r.Title, r.Author, r.IDs)
}

// ExistingInfo is the ownership state of one identity on one backend
type ExistingInfo struct {
	ID        int  `json:"id"`
	Monitored bool `json:"monitored"`
	HasFile   bool `json:"hasFile"`
}

// Complete reports whether nothing is left to request: monitored with a file
func (e ExistingInfo) Complete() bool {
	return e.Monitored && e.HasFile
}

// InstanceView is one backend's state for a unified search item
type InstanceView struct {
	Available    bool          `json:"available"`
	AlreadyAdded bool          `json:"alreadyAdded"`
	ExistingID   *int          `json:"existingId,omitempty"`
	Monitored    *bool         `json:"monitored,omitempty"`
	HasFile      *bool         `json:"hasFile,omitempty"`
	Lookup       *LookupRecord `json:"lookup,omitempty"`
}

// ApplyExisting records catalog ownership on the view
func (v *InstanceView) ApplyExisting(info ExistingInfo) {
	id, monitored, hasFile := info.ID, info.Monitored, info.HasFile
	v.Available = true
	v.ExistingID = &id
	v.Monitored = &monitored
	v.HasFile = &hasFile
	v.AlreadyAdded = info.Complete()
}

// UnifiedSearchItem is one distinct book across both backends
type UnifiedSearchItem struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Author string `json:"author"`
	IDs
	Ebook InstanceView `json:"ebook"`
	Audio InstanceView `json:"audio"`
}

// View returns the item's slot for backend
func (i *UnifiedSearchItem) View(b Backend) *InstanceView {
	if b == BackendAudiobooks {
		return &i.Audio
	}
	return &i.Ebook
}
