package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// UnknownAuthor is used when a record carries no usable author field
const UnknownAuthor = "Unknown author"

// BookRecord is a backend book object kept as an open mapping so fields this
// service does not know about survive a round trip to the backend
type BookRecord map[string]any

// Clone returns a shallow copy of the record
func (r BookRecord) Clone() BookRecord {
	out := make(BookRecord, len(r)+4)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value at key rendered as a string, or "" when absent
func (r BookRecord) String(key string) string {
	return stringify(r[key])
}

// Int returns the value at key as an int, or 0 when absent or not numeric
func (r BookRecord) Int(key string) int {
	return toInt(r[key])
}

// Bool returns the value at key when it is a JSON boolean
func (r BookRecord) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Object returns the nested object at key, or nil
func (r BookRecord) Object(key string) BookRecord {
	switch v := r[key].(type) {
	case map[string]any:
		return v
	case BookRecord:
		return v
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	}
	return 0
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

// DecodeRecords decodes a JSON array of objects keeping numbers exact
func DecodeRecords(r io.Reader) ([]BookRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]BookRecord, 0, len(raw))
	for _, m := range raw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// DecodeRecord decodes a single JSON object keeping numbers exact
func DecodeRecord(r io.Reader) (BookRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeBytes(data []byte) (BookRecord, error) {
	return DecodeRecord(bytes.NewReader(data))
}
