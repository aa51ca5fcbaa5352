package ingest

import (
	"net/url"

	"github.com/cockroachdb/errors"
)

const (
	DefaultBaseURL = "https://www.facebook.com/ads/library/"

	collectionParam = "view_all_page_id"
)

// BuildListingURL returns the listing URL showing every record of a
// collection, active and inactive, across all countries and media types.
func BuildListingURL(baseURL, collectionID string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	params := url.Values{}
	params.Set("active_status", "all")
	params.Set("ad_type", "all")
	params.Set("country", "ALL")
	params.Set("is_targeted_country", "false")
	params.Set("media_type", "all")
	params.Set("search_type", "page")
	params.Set(collectionParam, collectionID)
	return baseURL + "?" + params.Encode()
}

// CollectionIDFromURL extracts the collection id from a listing URL.
func CollectionIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid listing url")
	}
	id := u.Query().Get(collectionParam)
	if id == "" {
		return "", errors.Newf("url must contain the %s query parameter", collectionParam)
	}
	return id, nil
}
