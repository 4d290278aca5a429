package rest

import (
	"net/http"
	"strings"
)

// Prefer holds the return preference of the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal", "representation", "headers-only"
}

// parsePrefer returns nil when the request has no Prefer header. A header
// without a valid return preference asks for a minimal response.
func parsePrefer(r *http.Request) *Prefer {
	header := r.Header.Get("Prefer")
	if header == "" {
		return nil
	}

	p := &Prefer{Return: "minimal"}
	parseKeyValPairs(header, func(key, value string) {
		if key == "return" && isValidReturn(value) {
			p.Return = strings.ToLower(value)
		}
	})
	return p
}

// parseKeyValPairs calls fn for each key=value directive of a comma
// separated header.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			fn(key, value)
		}
	}
}

func isValidReturn(s string) bool {
	switch strings.ToLower(s) {
	case "minimal", "representation", "headers-only":
		return true
	}
	return false
}

func (p *Prefer) WantsRepresentation() bool {
	return p == nil || p.Return == "representation"
}

// suppressBody reports whether a mutation response should carry no body.
// Clients without a Prefer header get the full representation.
func suppressBody(r *http.Request) bool {
	return !parsePrefer(r).WantsRepresentation()
}
