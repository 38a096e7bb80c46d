package mediaurl

import (
	"net/url"
	"strings"
)

const PathPrefix = "/media/"

// Local returns the URL under which the local blob store serves publicID.
func Local(baseURL, publicID string) string {
	return Join(strings.TrimRight(strings.TrimSpace(baseURL), "/")+strings.TrimSuffix(PathPrefix, "/"), publicID)
}

// Join appends an object key to a public base URL, escaping each segment.
func Join(baseURL, key string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return baseURL + "/" + strings.Join(segments, "/")
}
