package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/econradar/autodiscovery/internal/discovery"
)

const samplePage = `<!DOCTYPE html>
<html><body>
<a href="/files/series.xlsm">Series  </a>
<a href="sub/page.htm">Relative page</a>
<a href="https://other.example.net/doc.pdf">External doc</a>
<a href="#section">In-page anchor</a>
<a href="javascript:void(0)">Script link</a>
<a href="mailto:stats@example.com">Write us</a>
<a href="/dup#frag">With fragment</a>
<a>No href at all</a>
</body></html>`

func TestExtractLinks_ResolvesAgainstFinalURL(t *testing.T) {
	t.Parallel()

	page := discovery.Page{
		URL:  "https://h.example.com/stats/index.html",
		Body: []byte(samplePage),
	}
	links, err := New().ExtractLinks(page)
	require.NoError(t, err)

	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	require.Equal(t, []string{
		"https://h.example.com/files/series.xlsm",
		"https://h.example.com/stats/sub/page.htm",
		"https://other.example.net/doc.pdf",
		"https://h.example.com/dup",
	}, urls)
}

func TestExtractLinks_AnchorTextIsTrimmed(t *testing.T) {
	t.Parallel()

	page := discovery.Page{
		URL:  "https://h/",
		Body: []byte(`<a href="/a.xls">  Descargar serie
		</a>`),
	}
	links, err := New().ExtractLinks(page)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "Descargar serie", links[0].Text)
}

func TestExtractLinks_EmptyDocument(t *testing.T) {
	t.Parallel()

	links, err := New().ExtractLinks(discovery.Page{URL: "https://h/", Body: nil})
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestExtractLinks_BadBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New().ExtractLinks(discovery.Page{URL: "://bad", Body: []byte("<a href=\"/x\">x</a>")})
	require.Error(t, err)
}
