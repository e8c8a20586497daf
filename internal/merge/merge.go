// Package merge fuses the lookup results and catalogs of both backends into one
// list of distinct books.
package merge

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/drallgood/bookrequest/internal/catalog"
	"github.com/drallgood/bookrequest/internal/models"
)

// Input is everything one search produced
type Input struct {
	Term         string
	EbookLookup  []models.LookupRecord
	AudioLookup  []models.LookupRecord
	EbookCatalog *catalog.Index
	AudioCatalog *catalog.Index
}

// Merger builds the unified view
type Merger struct {
	// IncludeCatalogMatches also surfaces owned books whose title, author or ISBN
	// contain the search term but that the remote lookup did not return
	IncludeCatalogMatches bool
	// Locale drives title ordering; the zero value uses the root collation
	Locale language.Tag
}

type builder struct {
	items []*models.UnifiedSearchItem
	byKey map[string]*models.UnifiedSearchItem
}

func (b *builder) seed(key, title, author string, ids models.IDs) *models.UnifiedSearchItem {
	item := &models.UnifiedSearchItem{Key: key, Title: title, Author: author, IDs: ids}
	b.byKey[key] = item
	b.items = append(b.items, item)
	return item
}

func (b *builder) addLookup(backend models.Backend, records []models.LookupRecord) {
	for i := range records {
		rec := records[i]
		key := rec.Identity()
		if key == "" {
			continue
		}
		item, ok := b.byKey[key]
		if !ok {
			item = b.seed(key, rec.Title, rec.Author, rec.IDs)
		}
		view := item.View(backend)
		view.Available = true
		if view.Lookup == nil {
			view.Lookup = &rec
		}
	}
}

func (b *builder) addCatalogMatches(term string, idx *catalog.Index) {
	for _, m := range idx.Match(term) {
		if _, ok := b.byKey[m.Key]; ok {
			continue
		}
		b.seed(m.Key, m.Record.Title, m.Record.Author, m.Record.IDs)
	}
}

func annotate(item *models.UnifiedSearchItem, backend models.Backend, idx *catalog.Index) {
	if info, ok := idx.Lookup(item.Key); ok {
		item.View(backend).ApplyExisting(info)
	}
}

// Merge returns one item per distinct identity, ordered by title. The result is
// never nil.
func (m Merger) Merge(in Input) []models.UnifiedSearchItem {
	b := &builder{byKey: make(map[string]*models.UnifiedSearchItem)}

	b.addLookup(models.BackendEbooks, in.EbookLookup)
	b.addLookup(models.BackendAudiobooks, in.AudioLookup)

	if m.IncludeCatalogMatches && strings.TrimSpace(in.Term) != "" {
		b.addCatalogMatches(in.Term, in.EbookCatalog)
		b.addCatalogMatches(in.Term, in.AudioCatalog)
	}

	for _, item := range b.items {
		annotate(item, models.BackendEbooks, in.EbookCatalog)
		annotate(item, models.BackendAudiobooks, in.AudioCatalog)
	}

	// a collator keeps internal buffers and must not be shared between goroutines
	col := collate.New(m.Locale, collate.IgnoreCase)
	sort.SliceStable(b.items, func(i, j int) bool {
		return col.CompareString(b.items[i].Title, b.items[j].Title) < 0
	})

	out := make([]models.UnifiedSearchItem, 0, len(b.items))
	for _, item := range b.items {
		out = append(out, *item)
	}
	return out
}
