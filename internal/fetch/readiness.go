package fetch

import "strings"

// minReadyBytes is the body size below which a response is assumed to be a
// placeholder shell rather than a rendered page. Documentation pages on the
// upstream are server-rendered and comfortably larger than this.
const minReadyBytes = 512

// loadingMarkers are phrases the upstream serves while a page is still being
// generated. Deliberately phrase-shaped to avoid matching legitimate prose.
var loadingMarkers = []string{
	"loading documentation",
	"generating documentation",
	"please wait while",
	"content is loading",
	"still indexing",
}

// contentNotReady reports whether the body looks like a not-yet-rendered
// page, and which marker tripped. Callers treat this as a transient condition
// so the retry layer can pick up the finished render.
func contentNotReady(body []byte) (bool, string) {
	if len(body) < minReadyBytes {
		return true, "short body"
	}
	lower := strings.ToLower(string(body))
	for _, marker := range loadingMarkers {
		if strings.Contains(lower, marker) {
			return true, marker
		}
	}
	return false, ""
}
