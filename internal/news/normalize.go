package news

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidURL is returned for empty, malformed or non-http(s) URLs.
var ErrInvalidURL = errors.New("invalid article url")

// NormalizedURL is the canonical form of an article URL.
type NormalizedURL string

// Fingerprint is the hex SHA-256 identity of an article.
type Fingerprint string

var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"dclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
	"igshid":  true,
	"yclid":   true,
	"_ga":     true,
	"ref_src": true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return strings.HasPrefix(k, "utm_") || trackingParams[k]
}

// Normalize canonicalizes raw so that URLs a reader would consider the same
// article compare equal.
func Normalize(raw string) (NormalizedURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", ErrInvalidURL
	}
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host = net.JoinHostPort(host, port)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	// ParseQuery keeps what it could decode even when it reports an error.
	values, _ := url.ParseQuery(u.RawQuery)
	keys := make([]string, 0, len(values))
	for k := range values {
		if isTrackingParam(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var query strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if query.Len() > 0 {
				query.WriteByte('&')
			}
			query.WriteString(url.QueryEscape(k))
			query.WriteByte('=')
			query.WriteString(url.QueryEscape(v))
		}
	}

	out := scheme + "://" + host + path
	if query.Len() > 0 {
		out += "?" + query.String()
	}
	return NormalizedURL(out), nil
}

// FingerprintOf hashes a normalized URL.
func FingerprintOf(u NormalizedURL) Fingerprint {
	sum := sha256.Sum256([]byte(u))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// TopicFingerprint is the content-addressed variant: the lower-cased title
// joined with the sorted normalized URLs of every source covering the topic.
func TopicFingerprint(title string, urls ...NormalizedURL) Fingerprint {
	parts := make([]string, 0, len(urls))
	for _, u := range urls {
		parts = append(parts, string(u))
	}
	sort.Strings(parts)
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(parts, "|")))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
