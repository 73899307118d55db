package crawl

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during canonicalization
// because they identify a traffic source, not a distinct resource.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "gclid": true, "fbclid": true,
	"ref": true, "source": true,
}

// CanonicalizeURL normalizes rawURL per the source-id contract:
// lowercase scheme/host, default ports (80 http, 443 https) stripped,
// trailing slash normalized away (except for the root path), tracking
// query params removed, remaining params sorted, fragment dropped.
// On a malformed URL it falls back to a best-effort lowercase/trim of
// the raw string rather than failing, so SourceID never panics.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}

	p := u.Path
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}

	var kept []string
	for k, vals := range u.Query() {
		if trackingParams[strings.ToLower(k)] {
			continue
		}
		for _, v := range vals {
			kept = append(kept, k+"="+v)
		}
	}
	sort.Strings(kept)

	canonical := scheme + "://" + host + p
	if len(kept) > 0 {
		canonical += "?" + strings.Join(kept, "&")
	}
	return canonical
}

// SourceID returns the deterministic source identifier: the first 16
// hex characters of SHA256(CanonicalizeURL(rawURL)). Two URLs with
// equal canonical forms always produce the same id, and a parse
// failure still yields a stable (if degraded) id rather than an error.
func SourceID(rawURL string) string {
	canonical := CanonicalizeURL(rawURL)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// CanonicalKey returns the comparison key used for self-link detection:
// scheme://host[:non-default-port]/path, case-folded, trailing slash
// stripped. It differs from CanonicalizeURL in that it keeps the query
// string off entirely — self-link comparisons only care about the
// resource path, not its query.
func CanonicalKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	p := strings.TrimSuffix(u.Path, "/")
	return scheme + "://" + host + p
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

func urlHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func stripQueryAndFragment(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
