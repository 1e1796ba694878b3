// Package listing maps marketplace feed documents to flat listing rows.
package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNotObject is returned by Decode when the payload is valid JSON but not an object.
var ErrNotObject = errors.New("feed document is not a JSON object")

// Document is one decoded feed page. Numbers are kept as json.Number so ids
// and prices survive without float rounding.
type Document map[string]any

// Meta is the pagination block of a feed page (the "_meta" object).
type Meta struct {
	PageCount   int
	TotalCount  int
	CurrentPage int
	PerPage     int
}

// Decode reads a single JSON object from r.
func Decode(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode feed document: %w", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Document(obj), nil
}

// DecodeBytes is Decode over an in-memory body.
func DecodeBytes(data []byte) (Document, error) {
	return Decode(bytes.NewReader(data))
}

// Meta extracts the pagination block. Missing or malformed values read as zero.
func (d Document) Meta() Meta {
	m, _ := d["_meta"].(map[string]any)
	return Meta{
		PageCount:   intValue(m["pageCount"]),
		TotalCount:  intValue(m["totalCount"]),
		CurrentPage: intValue(m["currentPage"]),
		PerPage:     intValue(m["perPage"]),
	}
}

// Items returns the object entries of the "items" array. Non-object entries are skipped.
func (d Document) Items() []map[string]any {
	raw, _ := d["items"].([]any)
	items := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if item, ok := v.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

func intValue(v any) int {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return 0
}
