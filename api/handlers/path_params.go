package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// urlParam returns the named path parameter decoded. chi matches against
// URL.RawPath whenever the request carries one, so its values keep escapes
// such as %2C and %3B that Locator produces.
func urlParam(r *http.Request, key string) string {
	if v := chi.URLParam(r, key); v != "" {
		if r.URL.RawPath == "" {
			return v
		}
		return unescape(v)
	}
	return unescape(pathParams(r)[key])
}

func unescape(v string) string {
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

func pathParams(r *http.Request) map[string]string {
	out := map[string]string{}
	rc := chi.RouteContext(r.Context())
	if rc != nil {
		for i, key := range rc.URLParams.Keys {
			if i < len(rc.URLParams.Values) {
				out[key] = rc.URLParams.Values[i]
			}
		}
	}
	if len(out) > 0 {
		if r.URL.RawPath == "" {
			for key, v := range out {
				out[key] = url.PathEscape(v)
			}
		}
		return out
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.EscapedPath()), "/"), "/")
	addParamAfter(segments, "a", "kind", out)
	addParamAfter(segments, "attachments", "kind", out)
	addParamAfter(segments, "regions", "id", out)
	addParamAfter(segments, "incidents", "id", out)
	if kind, ok := out["kind"]; ok {
		addParamAfter(segments, kind, "key", out)
	}
	return out
}

func addParamAfter(segments []string, marker, key string, out map[string]string) {
	if _, exists := out[key]; exists {
		return
	}
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == marker && strings.TrimSpace(segments[i+1]) != "" {
			out[key] = segments[i+1]
			return
		}
	}
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
