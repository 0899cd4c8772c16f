package helpers

import (
	"errors"
	"net/url"
	"strings"
)

// GetSplitPart splits target by separate and returns the part at index
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// PathOf returns the path component of a URL, or the raw string when it
// does not parse. Route predicates match against this.
func PathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// QueryOf returns the parsed query parameters of a URL. An unparseable
// URL yields empty values.
func QueryOf(rawURL string) url.Values {
	u, err := url.Parse(rawURL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}
