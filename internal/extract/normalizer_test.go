package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SampleResponse(t *testing.T) {
	sample, err := os.ReadFile("testdata/sample_graph_response.json")
	require.NoError(t, err)

	candidates := Normalize(sample)
	require.Len(t, candidates, 2)

	first := candidates[0]
	id, ok := RecordID(first)
	require.True(t, ok)
	assert.Equal(t, "111", id)

	pageID, ok := CollectionID(first)
	require.True(t, ok)
	assert.Equal(t, "282592881929497", pageID)
	assert.Equal(t, true, first["is_active"])

	second := candidates[1]
	id, ok = RecordID(second)
	require.True(t, ok)
	assert.Equal(t, "222", id)
	assert.Equal(t, json.Number("1717200000"), second["end_date"])
}

func TestNormalize_EdgeThenCollatedOrder(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
	}{
		{"single edge", []int{3}},
		{"several edges", []int{2, 1, 4}},
		{"empty edges in between", []int{1, 0, 2, 0}},
		{"no edges", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, want := edgePayload(tt.counts)

			candidates := Normalize([]byte(payload))

			require.Len(t, candidates, len(want))
			for i, c := range candidates {
				id, ok := RecordID(c)
				require.True(t, ok)
				assert.Equal(t, want[i], id)
			}
		})
	}
}

func TestNormalize_LegacyShapes(t *testing.T) {
	t.Run("ad_library results", func(t *testing.T) {
		payload := `{"data":{"ad_library":{"ad_results":[{"adid":"a1","pageId":"p"},{"adid":"a2","pageId":"p"}]}}}`
		candidates := Normalize([]byte(payload))
		require.Len(t, candidates, 2)
		id, _ := RecordID(candidates[1])
		assert.Equal(t, "a2", id)
	})

	t.Run("ad_library_page results", func(t *testing.T) {
		payload := `{"data":{"ad_library_page":{"ad_results":[{"id":"x","page":{"id":7}}]}}}`
		candidates := Normalize([]byte(payload))
		require.Len(t, candidates, 1)
		pageID, ok := CollectionID(candidates[0])
		require.True(t, ok)
		assert.Equal(t, "7", pageID)
	})

	t.Run("first present legacy list wins", func(t *testing.T) {
		payload := `{"data":{
			"ad_library":{"ad_results":[{"adid":"primary"}]},
			"ad_library_page":{"ad_results":[{"adid":"secondary"}]}}}`
		candidates := Normalize([]byte(payload))
		require.Len(t, candidates, 1)
		id, _ := RecordID(candidates[0])
		assert.Equal(t, "primary", id)
	})

	t.Run("newer results precede legacy results", func(t *testing.T) {
		payload := `{"data":{
			"ad_library":{"ad_results":[{"adid":"legacy"}]},
			"ad_library_main":{"search_results_connection":{"edges":[
				{"node":{"collated_results":[{"ad_archive_id":"new"}]}}]}}}}`
		candidates := Normalize([]byte(payload))
		require.Len(t, candidates, 2)
		first, _ := RecordID(candidates[0])
		second, _ := RecordID(candidates[1])
		assert.Equal(t, "new", first)
		assert.Equal(t, "legacy", second)
	})
}

func TestNormalize_MalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"not json", "<html>nope</html>"},
		{"truncated", `{"data":{"ad_library_main":`},
		{"unrelated shape", `{"data":{"viewer":{"id":"1"}}}`},
		{"edges not a list", `{"data":{"ad_library_main":{"search_results_connection":{"edges":{}}}}}`},
		{"collated entries not objects", `{"data":{"ad_library_main":{"search_results_connection":{"edges":[{"node":{"collated_results":[1,"x",null]}}]}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Normalize([]byte(tt.payload)))
		})
	}
}

func TestNormalize_MultiDocumentBody(t *testing.T) {
	body := strings.Join([]string{
		`{"data":{"ad_library_main":{"search_results_connection":{"edges":[{"node":{"collated_results":[{"ad_archive_id":"1"}]}}]}}}}`,
		`not json at all`,
		`{"data":{"ad_library":{"ad_results":[{"adid":"2"}]}}}`,
	}, "\n")

	candidates := Normalize([]byte(antiHijackPrefix + body))
	require.Len(t, candidates, 2)
	first, _ := RecordID(candidates[0])
	second, _ := RecordID(candidates[1])
	assert.Equal(t, "1", first)
	assert.Equal(t, "2", second)
}

func TestNormalize_PreservesUnknownFields(t *testing.T) {
	payload := `{"data":{"ad_library":{"ad_results":[{"adid":"1","page_id":"p","brand_new_field":{"nested":[1,2]}}]}}}`
	candidates := Normalize([]byte(payload))
	require.Len(t, candidates, 1)

	rec, ok := Resolve(candidates[0])
	require.True(t, ok)
	assert.Contains(t, rec.Attributes, "brand_new_field")
}

// edgePayload builds a payload with len(counts) edges, edge i holding
// counts[i] collated results, and returns the ids in expected order.
func edgePayload(counts []int) (string, []string) {
	var edges []string
	var ids []string
	for e, n := range counts {
		var entries []string
		for c := 0; c < n; c++ {
			id := fmt.Sprintf("e%d-c%d", e, c)
			ids = append(ids, id)
			entries = append(entries, fmt.Sprintf(`{"ad_archive_id":%q,"page_id":"p"}`, id))
		}
		edges = append(edges, fmt.Sprintf(`{"node":{"collated_results":[%s]}}`, strings.Join(entries, ",")))
	}
	payload := fmt.Sprintf(`{"data":{"ad_library_main":{"search_results_connection":{"edges":[%s]}}}}`, strings.Join(edges, ","))
	return payload, ids
}
