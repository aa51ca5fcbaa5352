package ingest

import (
	"testing"

	"github.com/maltedev/adlibrary-sync/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAccept(t *testing.T) {
	tests := []struct {
		name     string
		payload  models.Payload
		expected bool
	}{
		{"graphql ok", models.Payload{URL: "https://www.facebook.com/api/graphql/", Status: 200}, true},
		{"graphql 204", models.Payload{URL: "https://www.facebook.com/api/graphql/", Status: 204}, true},
		{"graphql redirect", models.Payload{URL: "https://www.facebook.com/api/graphql/", Status: 302}, false},
		{"graphql error", models.Payload{URL: "https://www.facebook.com/api/graphql/", Status: 500}, false},
		{"other endpoint", models.Payload{URL: "https://www.facebook.com/ajax/bz", Status: 200}, false},
		{"embedded", models.Payload{URL: "https://www.facebook.com/ads/library/", Status: 200, Embedded: true}, true},
		{"embedded needs success", models.Payload{Status: 0, Embedded: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Accept(tt.payload, ""))
		})
	}
}

func TestAccept_CustomEndpoint(t *testing.T) {
	p := models.Payload{URL: "https://example.com/api/v2/listing", Status: 200}
	assert.True(t, Accept(p, "/api/v2/listing"))
	assert.False(t, Accept(p, DefaultEndpointPath))
}
