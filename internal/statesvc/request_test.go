package statesvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseUpdateRequest_Valid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want time.Time
	}{
		{
			name: "rfc3339",
			body: `{"state":{"count":1},"lastModified":"2024-01-01T00:00:00Z"}`,
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "rfc3339 with offset and fraction",
			body: `{"state":[],"lastModified":"2024-01-01T03:00:00.5+03:00"}`,
			want: time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC),
		},
		{
			name: "iso without zone",
			body: `{"state":"x","lastModified":"2024-01-01T00:00:00.123456"}`,
			want: time.Date(2024, 1, 1, 0, 0, 0, 123_456_000, time.UTC),
		},
		{
			name: "epoch millis",
			body: `{"state":0,"lastModified":1704067200000}`,
			want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "epoch millis at last representable instant",
			body: `{"state":0,"lastModified":253402300799999}`,
			want: time.Date(9999, 12, 31, 23, 59, 59, 999_000_000, time.UTC),
		},
		{
			name: "epoch millis at year zero",
			body: `{"state":0,"lastModified":-62167219200000}`,
			want: time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseUpdateRequest([]byte(tc.body))
			require.NoError(t, err)
			require.True(t, req.LastModified.Equal(tc.want), "got %s", req.LastModified)
			require.Equal(t, time.UTC, req.LastModified.Location())
		})
	}
}

func TestParseUpdateRequest_Invalid(t *testing.T) {
	bodies := map[string]string{
		"empty":                ``,
		"not json":             `{"state":`,
		"array body":           `[1,2]`,
		"missing state":        `{"lastModified":"2024-01-01T00:00:00Z"}`,
		"null state":           `{"state":null,"lastModified":"2024-01-01T00:00:00Z"}`,
		"missing lastModified": `{"state":{}}`,
		"null lastModified":    `{"state":{},"lastModified":null}`,
		"bad timestamp":        `{"state":{},"lastModified":"yesterday"}`,
		"bool timestamp":       `{"state":{},"lastModified":true}`,
		"millis past 9999":     `{"state":{},"lastModified":253402300800000}`,
		"millis before year 0": `{"state":{},"lastModified":-62167219200001}`,
		"offset past 9999":     `{"state":{},"lastModified":"9999-12-31T23:30:00-01:00"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUpdateRequest([]byte(body))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}
