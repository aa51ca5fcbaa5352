package extract

import (
	"encoding/json"
	"strconv"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

// Record id fields, most authoritative first.
var recordIDPaths = [][]string{
	{"ad_archive_id"},
	{"adid"},
	{"id"},
}

// Collection id fields, most authoritative first.
var collectionIDPaths = [][]string{
	{"page_id"},
	{"pageId"},
	{"page", "id"},
	{"snapshot", "page_id"},
}

// RecordID returns the first non-empty record identifier of c.
func RecordID(c Candidate) (string, bool) {
	return firstID(c, recordIDPaths)
}

// CollectionID returns the first non-empty owning collection identifier of c.
// An empty page_id falls through to the next field, like record ids do.
func CollectionID(c Candidate) (string, bool) {
	return firstID(c, collectionIDPaths)
}

// Resolve builds a Record from c. It fails when either identifier is missing.
func Resolve(c Candidate) (models.Record, bool) {
	id, ok := RecordID(c)
	if !ok {
		return models.Record{}, false
	}
	collectionID, ok := CollectionID(c)
	if !ok {
		return models.Record{}, false
	}
	return models.Record{
		ID:           id,
		CollectionID: collectionID,
		Attributes:   map[string]any(c),
	}, true
}

func firstID(c Candidate, paths [][]string) (string, bool) {
	for _, path := range paths {
		if s, ok := coerceID(lookup(c, path)); ok {
			return s, true
		}
	}
	return "", false
}

func lookup(m map[string]any, path []string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Candidate:
		return t, true
	}
	return nil, false
}

// coerceID renders string and numeric identifiers uniformly. Anything else,
// including null and the empty string, counts as absent.
func coerceID(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		return "", false
	}
	return s, s != ""
}
