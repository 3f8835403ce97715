package ledger

import (
	"net/url"
	"strings"
)

// ProfileHandle reduces a profile link to its handle: the last path segment
// after trailing slashes, query and fragment are dropped.
func ProfileHandle(link string) string {
	s := strings.TrimSpace(link)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Path
		}
	} else if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimPrefix(s, "@")
}
