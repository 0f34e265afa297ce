package acquisition

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
	<title>Example</title>
	<item>
		<title>First story</title>
		<link>https://example.com/first</link>
		<description><![CDATA[<p>The <em>first</em> story body.</p><script>track()</script>]]></description>
		<category>World</category>
		<pubDate>Mon, 04 Mar 2024 10:15:00 GMT</pubDate>
	</item>
	<item>
		<title>No body</title>
		<link>https://example.com/empty</link>
	</item>
</channel>
</rss>`

func TestFeedReader_Fetch(t *testing.T) {
	var gotUA string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get(headerUserAgent)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer ts.Close()

	entries, err := NewFeedReader(0, "NewsQuiz/test").Fetch(context.Background(), ts.URL, "en")
	require.NoError(t, err)

	assert.Equal(t, "NewsQuiz/test", gotUA)
	require.Len(t, entries, 2)

	assert.Equal(t, "https://example.com/first", entries[0].URL)
	assert.Equal(t, "First story", entries[0].Title)
	assert.Equal(t, "The first story body.", entries[0].Body)
	assert.Equal(t, "world", entries[0].Category)
	assert.Equal(t, "en", entries[0].Language)
	assert.False(t, entries[0].PublishedAt.IsZero())

	assert.Empty(t, entries[1].Body)
}

func TestFeedReader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusInternalServerError, ""},
		{"malformed feed", http.StatusOK, "this is not a feed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewFeedReader(0, "").Fetch(context.Background(), ts.URL, "en")
			require.Error(t, err)
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "  plain   text\nhere ", "plain text here"},
		{"markup", "<div><p>Hello</p> <p>world &amp; more</p></div>", "Hello world & more"},
		{"script removed", "<p>Body</p><style>p{}</style><script>x()</script>", "Body"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.input))
		})
	}
}
