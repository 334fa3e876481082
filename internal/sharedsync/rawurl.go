package sharedsync

import (
	"net/url"
	"strings"
)

// RawURL rewrites a paste or gist page URL to its raw-content form. Other
// URLs are returned unchanged.
func RawURL(target string) string {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || u.Host == "" {
		return target
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	switch host {
	case "pastebin.com":
		if len(parts) == 1 && parts[0] != "raw" {
			return "https://pastebin.com/raw/" + parts[0]
		}
	case "gist.github.com":
		if len(parts) == 2 {
			return "https://gist.githubusercontent.com/" + parts[0] + "/" + parts[1] + "/raw"
		}
	case "rentry.co", "rentry.org":
		if len(parts) == 1 {
			return "https://" + host + "/" + parts[0] + "/raw"
		}
	}
	return target
}
