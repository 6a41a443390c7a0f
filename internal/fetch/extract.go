package fetch

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ExtractTitle returns the page <title>, falling back to the first <h1>.
func ExtractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// ExtractLinks returns candidate same-repository URLs found in body, resolved
// against pageURL and scoped to the repository tree rooted at scopeURL.
// Fragments and query strings are stripped and duplicates collapsed.
func ExtractLinks(body []byte, pageURL, scopeURL string) ([]string, error) {
	scope, err := url.Parse(scopeURL)
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse scope url")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse page url")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	scopePath := strings.TrimSuffix(scope.Path, "/")
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host != scope.Host {
			return
		}
		// Same-repository scope: the path must sit under the repo root.
		if resolved.Path != scopePath && !strings.HasPrefix(resolved.Path, scopePath+"/") {
			return
		}

		resolved.Fragment = ""
		resolved.RawQuery = ""
		normalized := strings.TrimSuffix(resolved.String(), "/")
		if normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})

	return links, nil
}

var (
	spaceRe   = regexp.MustCompile(`[ \t]+`)
	edgeRe    = regexp.MustCompile(`(?m)^ +| +$`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips scripts, styles and page chrome from body and returns the
// readable text with collapsed whitespace. Pure: no effect on crawl control
// flow.
func Sanitize(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()

	root := doc.Find("main")
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	// Block-level elements render as separate lines before whitespace
	// collapsing, so paragraphs stay apart in the text output.
	root.Find("p, div, li, pre, h1, h2, h3, h4, h5, h6, blockquote, tr").AppendHtml("\n")

	text := root.Text()
	text = spaceRe.ReplaceAllString(text, " ")
	text = edgeRe.ReplaceAllString(text, "")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
