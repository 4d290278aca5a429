package pagination

import (
	"net/http"
	"net/url"
	"strings"
)

// ReplaceQueryParam sets key to val in rawURL's query string. Query keys are
// re-encoded in sorted order. An unparsable rawURL is returned unchanged.
func ReplaceQueryParam(rawURL, key, val string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, val)
	u.RawQuery = q.Encode()
	return u.String()
}

// RemoveQueryParam deletes key from rawURL's query string.
func RemoveQueryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del(key)
	u.RawQuery = q.Encode()
	return u.String()
}

// RequestURL reconstructs the absolute URL the client requested. The scheme
// honours X-Forwarded-Proto set by a terminating proxy.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.ToLower(strings.TrimSpace(scheme))
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	return u.String()
}
