// Package extract turns intercepted listing responses into candidate records
// and resolves their identity.
package extract

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate is a loosely typed record as it appeared in the payload. Numbers
// are kept as json.Number so large identifiers survive decoding.
type Candidate map[string]any

// antiHijackPrefix is prepended to some GraphQL responses.
const antiHijackPrefix = "for (;;);"

const (
	edgesPath    = "data.ad_library_main.search_results_connection.edges"
	collatedPath = "node.collated_results"
)

// Older payload shapes, in fallback order. Only the first one present is used.
var legacyResultPaths = []string{
	"data.ad_library.ad_results",
	"data.ad_library_page.ad_results",
}

// Top-level keys under "data" that mark a listing payload.
var listingRoots = []string{
	"ad_library_main",
	"ad_library",
	"ad_library_page",
}

// Normalize extracts candidate records from one payload. Results from the
// edge/collated shape come first, followed by the legacy flat lists. A body
// holding several newline separated documents is handled document by
// document. Malformed input yields nil.
func Normalize(payload []byte) []Candidate {
	var out []Candidate
	for _, doc := range documents(payload) {
		out = appendEdgeResults(out, doc)
		out = appendLegacyResults(out, doc)
	}
	return out
}

func documents(payload []byte) []gjson.Result {
	body := strings.TrimSpace(string(payload))
	body = strings.TrimSpace(strings.TrimPrefix(body, antiHijackPrefix))
	if body == "" {
		return nil
	}
	if gjson.Valid(body) {
		return []gjson.Result{gjson.Parse(body)}
	}

	var docs []gjson.Result
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !gjson.Valid(line) {
			continue
		}
		docs = append(docs, gjson.Parse(line))
	}
	return docs
}

func appendEdgeResults(out []Candidate, doc gjson.Result) []Candidate {
	edges := doc.Get(edgesPath)
	if !edges.IsArray() {
		return out
	}
	edges.ForEach(func(_, edge gjson.Result) bool {
		collated := edge.Get(collatedPath)
		if !collated.IsArray() {
			return true
		}
		collated.ForEach(func(_, entry gjson.Result) bool {
			if c, ok := decodeCandidate(entry); ok {
				out = append(out, c)
			}
			return true
		})
		return true
	})
	return out
}

func appendLegacyResults(out []Candidate, doc gjson.Result) []Candidate {
	for _, path := range legacyResultPaths {
		results := doc.Get(path)
		if !results.IsArray() {
			continue
		}
		results.ForEach(func(_, entry gjson.Result) bool {
			if c, ok := decodeCandidate(entry); ok {
				out = append(out, c)
			}
			return true
		})
		break
	}
	return out
}

func decodeCandidate(entry gjson.Result) (Candidate, bool) {
	if !entry.IsObject() {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(entry.Raw))
	dec.UseNumber()

	var c Candidate
	if err := dec.Decode(&c); err != nil {
		return nil, false
	}
	return c, true
}

// IsListingPayload reports whether doc looks like a listing response.
func IsListingPayload(doc gjson.Result) bool {
	data := doc.Get("data")
	if !data.IsObject() {
		return false
	}
	for _, key := range listingRoots {
		if data.Get(key).Exists() {
			return true
		}
	}
	return false
}
