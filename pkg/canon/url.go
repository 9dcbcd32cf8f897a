// Package canon computes the canonical forms shared by ingestion and storage:
// canonical URLs, content-addressed news identities, and UTC timestamps.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrEmptyURL indicates the input URL was empty or whitespace.
var ErrEmptyURL = errors.New("empty url")

// trackingParams are dropped from query strings during canonicalization,
// alongside any key with the utm_ prefix. Matched case-insensitively.
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"cmpid":   {},
}

// CanonicalizeURL returns the deterministic form of a URL: scheme and host
// lowercased, tracking parameters removed, remaining query pairs sorted by
// (key, value) ascending, trailing slashes trimmed, fragment dropped.
// Userinfo and port are preserved verbatim. Idempotent: canonicalizing a
// canonical URL returns it unchanged.
func CanonicalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("unparseable url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}

	query := canonicalQuery(u.Query())

	var b strings.Builder
	if scheme != "" {
		b.WriteString(scheme)
		b.WriteByte(':')
	}
	if host != "" || u.User != nil {
		b.WriteString("//")
		if u.User != nil {
			b.WriteString(u.User.String())
			b.WriteByte('@')
		}
		b.WriteString(host)
	}
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String(), nil
}

// canonicalQuery drops tracking keys and re-encodes the remaining pairs in
// (key, value) ascending order, keeping empty values.
func canonicalQuery(values url.Values) string {
	kept := url.Values{}
	for key, vals := range values {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, drop := trackingParams[lower]; drop {
			continue
		}
		kept[key] = append(kept[key], vals...)
	}
	// Encode sorts by key only; values inside each key are pre-sorted so the
	// output is ordered by whole (key, value) pairs.
	for key := range kept {
		sort.Strings(kept[key])
	}
	return kept.Encode()
}

// NewsID returns the content-addressed identity of an article:
// hex-encoded sha256 of "source|canonical_url".
func NewsID(source, rawURL string) (string, error) {
	canonical, err := CanonicalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(source + "|" + canonical))
	return hex.EncodeToString(sum[:]), nil
}
