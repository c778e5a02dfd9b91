package store

import (
	"context"
	"net/url"
	"strings"

	"github.com/gorilla/securecookie"
)

// CookieJar is a read-only Source over a browser Cookie header, used to
// import preferences saved by the cookie-based web client.
//
// Values may be plain text, URL-escaped, or securecookie-encoded strings
// when a codec is configured. Encoded values that fail to decode are
// treated as plain text.
type CookieJar struct {
	values map[string]string
	codec  *securecookie.SecureCookie
}

// ParseCookieHeader parses "name=value; name2=value2". codec may be nil.
func ParseCookieHeader(header string, codec *securecookie.SecureCookie) *CookieJar {
	j := &CookieJar{values: make(map[string]string), codec: codec}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if _, dup := j.values[name]; dup || name == "" {
			continue
		}
		j.values[name] = value
	}
	return j
}

// NewCookieCodec builds a securecookie codec from raw key strings. An empty
// hashKey returns nil, meaning values are read as plain text.
func NewCookieCodec(hashKey, blockKey string) *securecookie.SecureCookie {
	if hashKey == "" {
		return nil
	}
	var block []byte
	if blockKey != "" {
		block = []byte(blockKey)
	}
	return securecookie.New([]byte(hashKey), block)
}

func (j *CookieJar) Get(_ context.Context, key string) (string, bool, error) {
	raw, ok := j.values[key]
	if !ok {
		return "", false, nil
	}
	if j.codec != nil {
		var decoded string
		if err := j.codec.Decode(key, raw, &decoded); err == nil {
			return decoded, true, nil
		}
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v, true, nil
	}
	return raw, true, nil
}

// Names returns the cookie names present in the header.
func (j *CookieJar) Names() []string {
	out := make([]string, 0, len(j.values))
	for k := range j.values {
		out = append(out, k)
	}
	return out
}
