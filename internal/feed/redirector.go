package feed

import (
	"net/url"
	"strings"
)

// maxDecodeRounds bounds how many extra percent-decoding passes a wrapped
// destination gets.
const maxDecodeRounds = 3

// redirectorPath is the click-through path used by Google search and alerts.
const redirectorPath = "/url"

// ResolveRedirector returns the destination wrapped by a Google click-through
// URL (https://www.google.com/url?...&url=<dest> or ?q=<dest>). Any other
// URL, or a redirector without a usable destination, is returned unchanged.
func ResolveRedirector(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !isRedirectorHost(u.Hostname()) || u.Path != redirectorPath {
		return raw
	}

	query := u.Query()

	target := query.Get("url")
	if target == "" {
		target = query.Get("q")
	}

	target = decodeNested(target)
	if !isHTTPURL(target) {
		return raw
	}

	return target
}

// decodeNested unescapes values that were percent-encoded more than once.
// A value that already looks like an absolute URL is left alone so that
// escapes belonging to the destination survive.
func decodeNested(value string) string {
	for range maxDecodeRounds {
		if isHTTPURL(value) || !strings.Contains(value, "%") {
			break
		}

		decoded, err := url.PathUnescape(value)
		if err != nil || decoded == value {
			break
		}

		value = decoded
	}

	return value
}

// isRedirectorHost accepts google.<tld> and google.co.<cc> / google.com.<cc>,
// with or without www.
func isRedirectorHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	labels := strings.Split(host, ".")
	if labels[0] != "google" {
		return false
	}

	switch len(labels) {
	case 2:
		return isTLDLabel(labels[1])
	case 3:
		return (labels[1] == "co" || labels[1] == "com") && len(labels[2]) == 2 && isTLDLabel(labels[2])
	}
	return false
}

func isTLDLabel(label string) bool {
	if len(label) < 2 {
		return false
	}
	for _, r := range label {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isHTTPURL(value string) bool {
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}

	u, err := url.Parse(value)
	return err == nil && u.Host != ""
}
