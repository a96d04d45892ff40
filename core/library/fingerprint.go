package library

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a resource locator so that trivially different
// spellings of the same URL fingerprint identically: scheme and host are
// lowercased, default ports and the fragment are stripped. Query parameters
// are kept as-is since they routinely identify the resource (e.g. ?v= ids).
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url: missing scheme or host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Host
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		u.Host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		u.Host = strings.TrimSuffix(host, ":443")
	}

	return u.String(), nil
}

// Fingerprint derives the dedup hash for a locator within one user's
// library. The owner id salts the hash, so the same URL bookmarked by two
// different users produces two different fingerprints.
func Fingerprint(userID int64, normalizedURL string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", userID, normalizedURL)))
	return hex.EncodeToString(sum[:])
}
