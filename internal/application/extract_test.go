package application

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, raw string) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func TestLookupString(t *testing.T) {
	t.Parallel()

	data := decodeJSON(t, `{
		"result": {"items": [{"name": "first"}, {"name": "second"}]},
		"empty": "",
		"number": 7
	}`)

	value, ok := lookupString(data, "result", "items", 1, "name")
	require.True(t, ok)
	assert.Equal(t, "second", value)

	_, ok = lookupString(data, "result", "items", 5, "name")
	assert.False(t, ok, "out of range index")

	_, ok = lookupString(data, "missing", "path")
	assert.False(t, ok)

	_, ok = lookupString(data, "empty")
	assert.False(t, ok, "empty strings do not count as hits")

	_, ok = lookupString(data, "number")
	assert.False(t, ok, "non-string leaf")
}

func TestMediaIDExtractorShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "nested trpc shape",
			raw:  `{"result":{"data":{"json":{"result":{"uploadMediaGenerationId":"media-1"}}}}}`,
			want: "media-1",
		},
		{
			name: "doubled generation id shape",
			raw:  `{"mediaGenerationId":{"mediaGenerationId":"media-2"}}`,
			want: "media-2",
		},
		{
			name: "flat legacy shape",
			raw:  `{"mediaId":"media-3"}`,
			want: "media-3",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := firstMatch(decodeJSON(t, tc.raw), mediaIDExtractors)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMediaIDExtractorOrderIsStable(t *testing.T) {
	t.Parallel()

	// When several shapes are present at once the most specific wins.
	data := decodeJSON(t, `{
		"result":{"data":{"json":{"result":{"uploadMediaGenerationId":"nested"}}}},
		"mediaId":"flat"
	}`)

	got, ok := firstMatch(data, mediaIDExtractors)
	require.True(t, ok)
	assert.Equal(t, "nested", got)
}

func TestVideoURLExtractorShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "wrapped operation metadata",
			raw:  `{"operation":{"metadata":{"video":{"fifeUrl":"http://v/1"}}}}`,
			want: "http://v/1",
		},
		{
			name: "bare metadata",
			raw:  `{"metadata":{"video":{"fifeUrl":"http://v/2"}}}`,
			want: "http://v/2",
		},
		{
			name: "singular generated video list",
			raw:  `{"result":{"generatedVideo":[{"fifeUrl":"http://v/3"}]}}`,
			want: "http://v/3",
		},
		{
			name: "plural generated video list",
			raw:  `{"result":{"generatedVideos":[{"fifeUrl":"http://v/4"}]}}`,
			want: "http://v/4",
		},
		{
			name: "top level video",
			raw:  `{"video":{"fifeUrl":"http://v/5"}}`,
			want: "http://v/5",
		},
		{
			name: "flat url",
			raw:  `{"fifeUrl":"http://v/6"}`,
			want: "http://v/6",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := firstMatch(decodeJSON(t, tc.raw), videoURLExtractors)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, ok := firstMatch(decodeJSON(t, `{"status":"done"}`), videoURLExtractors)
	assert.False(t, ok)
}

func TestVideoThumbnailExtractorShapes(t *testing.T) {
	t.Parallel()

	got, ok := firstMatch(decodeJSON(t,
		`{"operation":{"metadata":{"video":{"servingBaseUri":"http://t/1"}}}}`), videoThumbnailExtractors)
	require.True(t, ok)
	assert.Equal(t, "http://t/1", got)

	got, ok = firstMatch(decodeJSON(t,
		`{"metadata":{"video":{"servingBaseUri":"http://t/2"}}}`), videoThumbnailExtractors)
	require.True(t, ok)
	assert.Equal(t, "http://t/2", got)
}
