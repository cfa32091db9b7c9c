package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth modes reported by ModeFrom.
const (
	ModeBearer = "bearer"
	ModeBasic  = "basic"
)

// Credentials are the values accepted by Middleware. An empty BearerToken
// disables bearer auth; an empty BasicUser disables basic auth.
type Credentials struct {
	BearerToken string
	BasicUser   string
	BasicPass   string
}

type modeKey struct{}

// ModeFrom returns the auth mode Middleware accepted for the request.
func ModeFrom(ctx context.Context) string {
	m, _ := ctx.Value(modeKey{}).(string)
	return m
}

// Middleware rejects requests whose Authorization header matches neither
// the bearer token nor the basic credentials with 401.
func Middleware(creds Credentials, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mode := check(creds, r)
		if mode == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="fmstub", Bearer`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), modeKey{}, mode)))
	})
}

func check(creds Credentials, r *http.Request) string {
	h := r.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		if creds.BearerToken != "" && equal(tok, creds.BearerToken) {
			return ModeBearer
		}
		return ""
	}
	if user, pass, ok := r.BasicAuth(); ok && creds.BasicUser != "" {
		if equal(user, creds.BasicUser) && equal(pass, creds.BasicPass) {
			return ModeBasic
		}
	}
	return ""
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
