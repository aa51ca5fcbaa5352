package ingest

import (
	"strings"

	"github.com/maltedev/adlibrary-sync/internal/models"
)

// DefaultEndpointPath is the URL fragment of the listing's data endpoint.
const DefaultEndpointPath = "/graphql"

// Accept reports whether a payload should be normalized: the response must
// be a 2xx from the data endpoint. Embedded payloads skip the endpoint check.
func Accept(p models.Payload, endpointPath string) bool {
	if p.Status < 200 || p.Status >= 300 {
		return false
	}
	if p.Embedded {
		return true
	}
	if endpointPath == "" {
		endpointPath = DefaultEndpointPath
	}
	return strings.Contains(p.URL, endpointPath)
}
