package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/adlibrary-sync/internal/config"
	"github.com/maltedev/adlibrary-sync/internal/ingest"
	"github.com/maltedev/adlibrary-sync/internal/models"
)

func TestParseMax(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantErr bool
	}{
		{name: "omitted", args: []string{"url"}, want: ingest.Unbounded},
		{name: "positive", args: []string{"url", "25"}, want: 25},
		{name: "zero", args: []string{"url", "0"}, wantErr: true},
		{name: "negative", args: []string{"url", "-3"}, wantErr: true},
		{name: "not a number", args: []string{"url", "ten"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMax(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "automation",
			err:  errors.Mark(errors.New("navigation timed out"), ingest.ErrAutomation),
			want: "automation: navigation timed out",
		},
		{
			name: "sink",
			err:  errors.Wrap(errors.Mark(errors.New("disk full"), ingest.ErrSink), "failed to persist record"),
			want: "sink: failed to persist record: disk full",
		},
		{
			name: "store",
			err:  errors.Mark(errors.New("connection refused"), ingest.ErrStore),
			want: "store: connection refused",
		},
		{
			name: "unmarked",
			err:  errors.New("max must be a positive integer"),
			want: "max must be a positive integer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeError(tt.err))
		})
	}
}

func TestBrowserOptions(t *testing.T) {
	opts := browserOptions(config.BrowserConfig{
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  1024,
		ViewportHeight: 768,
		Locale:         "de-DE",
		TimezoneID:     "Europe/Berlin",
		UserDataDir:    "/tmp/profile",
	})

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1024, opts.ViewportWidth)
	assert.Equal(t, 768, opts.ViewportHeight)
	assert.Equal(t, "de-DE", opts.Locale)
	assert.Equal(t, "Europe/Berlin", opts.TimezoneID)
	assert.Equal(t, "/tmp/profile", opts.UserDataDir)
	assert.NotEmpty(t, opts.UserAgent, "default user agent is kept")
}

func TestSessionOptions(t *testing.T) {
	opts := sessionOptions(config.SyncConfig{
		GraphQLPath:      "/api/graphql/",
		HomeURL:          "https://example.com/",
		UISelector:       "div.results",
		EndSelector:      "div.end",
		SettleMin:        time.Second,
		SettleMax:        2 * time.Second,
		BlockedResources: []string{"image"},
	})

	assert.Equal(t, "/api/graphql/", opts.EndpointPath)
	assert.Equal(t, "https://example.com/", opts.HomeURL)
	assert.Equal(t, "div.results", opts.UISelector)
	assert.Equal(t, "div.end", opts.EndSelector)
	assert.Equal(t, time.Second, opts.SettleMin)
	assert.Equal(t, 2*time.Second, opts.SettleMax)
	assert.Equal(t, []string{"image"}, opts.BlockedResources)
	assert.Equal(t, 250, opts.ScrollStep)
}

func TestStack_OptionalCollaboratorsAreNil(t *testing.T) {
	s := &stack{}
	assert.Nil(t, s.outboxCounter())
	assert.Nil(t, s.recorder())
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, models.RunStats{
		CollectionID: "282592881929497",
		Mode:         models.ModeIncremental,
		TotalNew:     3,
		TotalSeen:    40,
		KnownIDs:     120,
		Attempts:     19,
		StopReason:   models.StopStalled,
		Duration:     1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "collection:  282592881929497")
	assert.Contains(t, out, "new records: 3")
	assert.Contains(t, out, "stopped:     stalled")
	assert.Contains(t, out, "duration:    1.5s")
}
