// Package identity derives the key used to recognise the same book across lookup
// results and owned catalog records of either backend.
package identity

import "strings"

// Fields are the identifying values of a book-like record. Numeric ids must already
// be rendered as strings.
type Fields struct {
	ForeignID   string
	GoodreadsID string
	ISBN13      string
	ISBN        string
	ASIN        string
	Title       string
	Author      string
}

// Normalize trims and lower-cases a value so equal ids compare equal regardless of
// how a backend formatted them
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve returns the identity key for f, or "" when the record cannot be matched.
//
// The first non-empty id in priority order (foreign id, Goodreads id, ISBN-13, ISBN,
// ASIN) yields "id:<value>". Without ids a title yields "t:<title>|a:<author>".
func Resolve(f Fields) string {
	for _, id := range [...]string{f.ForeignID, f.GoodreadsID, f.ISBN13, f.ISBN, f.ASIN} {
		if v := Normalize(id); v != "" {
			return "id:" + v
		}
	}
	if title := Normalize(f.Title); title != "" {
		return "t:" + title + "|a:" + Normalize(f.Author)
	}
	return ""
}
