package filter

import (
	"net/url"
	"strings"
)

// Param is one parsed kind[path]=value query-string parameter.
type Param struct {
	Kind  Kind
	Path  []string
	Value string
}

// ParseParams extracts the parameters of kind k from a raw query string in
// order of first appearance. When a key repeats, its last value wins and it
// keeps its first position. Keys with an empty path segment are skipped.
func ParseParams(rawQuery string, k Kind) []Param {
	prefix := k.String() + "["

	var params []Param
	index := make(map[string]int)

	for rawQuery != "" {
		var pair string
		pair, rawQuery, _ = strings.Cut(rawQuery, "&")
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		inner, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		inner, ok = strings.CutSuffix(inner, "]")
		if !ok {
			continue
		}
		path := strings.Split(inner, ".")
		if hasEmpty(path) {
			continue
		}

		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}

		if i, seen := index[inner]; seen {
			params[i].Value = value
			continue
		}
		index[inner] = len(params)
		params = append(params, Param{Kind: k, Path: path, Value: value})
	}
	return params
}

func hasEmpty(segments []string) bool {
	for _, s := range segments {
		if s == "" {
			return true
		}
	}
	return false
}
