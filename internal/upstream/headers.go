// internal/upstream/headers.go
package upstream

import "strings"

// allowedHeaders is the fixed set of header names permitted to leave the
// trust boundary. Anything captured from the browser but not named here is
// dropped, never forwarded. An allow-list, not a block-list.
var allowedHeaders = map[string]struct{}{
	"accept":             {},
	"accept-language":    {},
	"content-type":       {},
	"cookie":             {},
	"dnt":                {},
	"origin":             {},
	"referer":            {},
	"sec-ch-ua":          {},
	"sec-ch-ua-mobile":   {},
	"sec-ch-ua-platform": {},
	"user-agent":         {},
	"x-fe-signals":       {},
	"x-fe-version":       {},
	"x-vqd-4":            {},
	"x-vqd-hash-1":       {},
}

// FilterHeaders returns the subset of captured whose names are in the
// allow-list, matched case-insensitively. Original name casing is preserved
// in the result.
func FilterHeaders(captured map[string]string) map[string]string {
	out := make(map[string]string, len(captured))
	for name, value := range captured {
		if _, ok := allowedHeaders[strings.ToLower(name)]; ok {
			out[name] = value
		}
	}
	return out
}
