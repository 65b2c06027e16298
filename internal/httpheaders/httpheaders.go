// Package httpheaders merges header maps from the registry, settings and
// defaults without creating case-variant duplicates.
package httpheaders

import (
	"cmp"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Has reports whether headers contains name, ignoring case.
func Has(headers map[string]string, name string) bool {
	_, ok := findFold(headers, name)
	return ok
}

// Set stores value under name, replacing any key that differs only in case.
func Set(headers map[string]string, name, value string) map[string]string {
	return put(headers, name, value, true)
}

// Merge copies src into dst in sorted key order. Keys equal ignoring case
// are the same header; overwrite decides whether src or dst wins.
func Merge(dst, src map[string]string, overwrite bool) map[string]string {
	for _, key := range sortedKeys(src) {
		dst = put(dst, key, src[key], overwrite)
	}
	return dst
}

// WithBearer adds an Authorization bearer header unless one is present.
// An empty token leaves headers unchanged.
func WithBearer(headers map[string]string, token string) map[string]string {
	token = strings.TrimSpace(token)
	if token == "" {
		return headers
	}
	return put(headers, "Authorization", "Bearer "+token, false)
}

// Apply copies headers onto an outgoing request header set in sorted key
// order.
func Apply(dst http.Header, headers map[string]string) {
	for _, key := range sortedKeys(headers) {
		if name := strings.TrimSpace(key); name != "" {
			dst.Set(name, headers[key])
		}
	}
}

func put(headers map[string]string, name, value string, overwrite bool) map[string]string {
	name = strings.TrimSpace(name)
	if name == "" {
		return headers
	}
	if headers == nil {
		headers = make(map[string]string, 1)
	}
	if existing, ok := findFold(headers, name); ok {
		if !overwrite {
			return headers
		}
		delete(headers, existing)
	}
	headers[name] = value
	return headers
}

func sortedKeys(headers map[string]string) []string {
	return slices.SortedFunc(maps.Keys(headers), func(a, b string) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))),
			cmp.Compare(a, b),
		)
	})
}

func findFold(headers map[string]string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for key := range headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return key, true
		}
	}
	return "", false
}
