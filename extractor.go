package authgate

import (
	"net/http"
	"strings"
)

// TokenExtractor pulls a raw token string out of a request. Extractors
// never fail: absence is reported as ok=false, not as an error.
type TokenExtractor func(r *http.Request) (string, bool)

const bearerPrefix = "Bearer "

// BearerExtractor returns the token following the case-sensitive
// "Bearer " prefix in the Authorization header.
func BearerExtractor(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, bearerPrefix) {
		return "", false
	}

	token := value[len(bearerPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

// CookieExtractor returns an extractor reading the named cookie.
func CookieExtractor(name string) TokenExtractor {
	return func(r *http.Request) (string, bool) {
		cookie, err := r.Cookie(name)
		if err != nil || cookie.Value == "" {
			return "", false
		}
		return cookie.Value, true
	}
}
