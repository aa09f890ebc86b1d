package archive

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

var placeholder = regexp.MustCompile(`\{([a-z]+)(?::([^}]*))?\}`)

// RenderURL expands a URL template for product at t
func RenderURL(tmpl, product, identity string, t time.Time) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("empty url template")
	}

	var bad error
	out := placeholder.ReplaceAllStringFunc(tmpl, func(tok string) string {
		m := placeholder.FindStringSubmatch(tok)
		switch m[1] {
		case "product":
			return product
		case "identity":
			return url.QueryEscape(identity)
		case "time":
			if m[2] == "" {
				bad = fmt.Errorf("placeholder %s needs a layout", tok)
				return tok
			}
			return t.UTC().Format(m[2])
		default:
			bad = fmt.Errorf("unknown placeholder %s", tok)
			return tok
		}
	})
	if bad != nil {
		return "", bad
	}

	if _, err := url.Parse(out); err != nil {
		return "", fmt.Errorf("rendered url %q: %w", out, err)
	}
	return out, nil
}

// candidates returns t followed by t-step, t+step, t-2*step, ... while the
// offset stays within margin.
func candidates(t time.Time, step, margin time.Duration) []time.Time {
	out := []time.Time{t}
	if step <= 0 {
		return out
	}
	for off := step; off <= margin; off += step {
		out = append(out, t.Add(-off), t.Add(off))
	}
	return out
}
