package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

const embeddedSelector = `script[type="application/json"]`

// EmbeddedPayloads finds listing payloads that the server rendered into the
// page as JSON script blocks. The first result page is delivered this way
// rather than over the network, so callers feed these through Normalize
// before any intercepted response.
func EmbeddedPayloads(html string) ([][]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page html")
	}

	var payloads [][]byte
	doc.Find(embeddedSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || !gjson.Valid(text) {
			return
		}
		collectPayloads(gjson.Parse(text), &payloads)
	})
	return payloads, nil
}

// collectPayloads walks the script's JSON and keeps every object shaped like
// a listing response. Matching subtrees are not descended into.
func collectPayloads(r gjson.Result, out *[][]byte) {
	if r.IsObject() && IsListingPayload(r) {
		*out = append(*out, []byte(r.Raw))
		return
	}
	if r.IsObject() || r.IsArray() {
		r.ForEach(func(_, v gjson.Result) bool {
			collectPayloads(v, out)
			return true
		})
	}
}
