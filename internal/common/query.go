package common

import (
	"net/url"
	"strconv"
	"strings"
)

// QueryInt reads the first of keys present in q as an int. A missing or
// malformed value yields def.
func QueryInt(q url.Values, def int, keys ...string) int {
	for _, key := range keys {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return def
		}
		return n
	}
	return def
}
