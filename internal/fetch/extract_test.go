package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linkPage = `<html><head><title>wiki: owner/repo</title></head><body>
<main>
<h1>Overview</h1>
<a href="/owner/repo/2-architecture">Architecture</a>
<a href="/owner/repo/3-api#section">API</a>
<a href="/owner/repo/3-api?tab=raw">API raw tab</a>
<a href="https://example.com/owner/repo/4-deploy/">Deploy</a>
<a href="https://example.com/other/project">Other project</a>
<a href="https://elsewhere.com/owner/repo/5">Off-site</a>
<a href="mailto:docs@example.com">Mail</a>
<a href="javascript:void(0)">JS</a>
<a href="/owner/repo-two/1">Prefix collision</a>
</main>
</body></html>`

func TestExtractLinks_ScopedToRepository(t *testing.T) {
	links, err := ExtractLinks([]byte(linkPage),
		"https://example.com/owner/repo", "https://example.com/owner/repo")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/owner/repo/2-architecture",
		"https://example.com/owner/repo/3-api",
		"https://example.com/owner/repo/4-deploy",
	}, links)
}

func TestExtractLinks_DeduplicatesFragmentsAndQueries(t *testing.T) {
	links, err := ExtractLinks([]byte(linkPage),
		"https://example.com/owner/repo", "https://example.com/owner/repo")
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, l := range links {
		seen[l]++
	}
	assert.Equal(t, 1, seen["https://example.com/owner/repo/3-api"],
		"fragment and query variants must collapse to one URL")
}

func TestExtractLinks_RelativeResolution(t *testing.T) {
	body := `<html><body><a href="subpage">Sub</a></body></html>`
	links, err := ExtractLinks([]byte(body),
		"https://example.com/owner/repo/docs/", "https://example.com/owner/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/owner/repo/docs/subpage"}, links)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "wiki: owner/repo", ExtractTitle([]byte(linkPage)))

	noTitle := `<html><body><h1> Fallback Heading </h1></body></html>`
	assert.Equal(t, "Fallback Heading", ExtractTitle([]byte(noTitle)))

	assert.Equal(t, "", ExtractTitle([]byte("<html><body></body></html>")))
}

func TestSanitize_StripsChromeAndScripts(t *testing.T) {
	body := `<html><body>
<nav>Site navigation</nav>
<script>alert("x")</script>
<style>.a{color:red}</style>
<main><h1>Getting Started</h1><p>Install the package.</p></main>
<footer>Copyright</footer>
</body></html>`

	text := Sanitize([]byte(body))
	assert.Contains(t, text, "Getting Started")
	assert.Contains(t, text, "Install the package.")
	assert.NotContains(t, text, "Site navigation")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color:red")
	assert.NotContains(t, text, "Copyright")
}

func TestSanitize_CollapsesWhitespace(t *testing.T) {
	body := "<html><body><p>a    b</p>\n\n\n\n<p>c</p></body></html>"
	text := Sanitize([]byte(body))
	assert.NotContains(t, text, "  ")
	assert.NotContains(t, text, "\n\n\n")
}
