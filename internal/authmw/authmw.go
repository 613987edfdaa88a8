// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const scheme = "bearer"

// BearerToken returns middleware that accepts a request only when its
// Authorization header carries one of tokens. The scheme is matched without
// regard to case. Empty tokens are ignored; with none left every request is
// rejected. Tokens are compared in constant time.
func BearerToken(tokens ...string) func(http.Handler) http.Handler {
	var expected [][]byte
	for _, t := range tokens {
		if t != "" {
			expected = append(expected, []byte(t))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := parseBearer(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing or malformed authorization header")
				return
			}
			if !matchAny(got, expected) {
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseBearer splits "Bearer <token>" and returns the token.
func parseBearer(header string) ([]byte, bool) {
	s, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(s, scheme) {
		return nil, false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, false
	}
	return []byte(tok), true
}

// matchAny checks got against every candidate so timing does not reveal which matched.
func matchAny(got []byte, expected [][]byte) bool {
	match := 0
	for _, e := range expected {
		match |= subtle.ConstantTimeCompare(got, e)
	}
	return match == 1
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="sift"`)
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
