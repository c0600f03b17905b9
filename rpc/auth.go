package rpc

// auth.go – token auth middleware. Clients send `x-auth-token` carrying the
// hex HMAC-SHA256 of the request path under the shared secret. Disabled auth
// passes everything through.

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// AuthHeader is the request header carrying the token.
const AuthHeader = "x-auth-token"

// AuthConfig controls the auth middleware.
type AuthConfig struct {
	Enabled bool
	Secret  []byte
}

// DisabledAuth turns the middleware into a pass-through.
func DisabledAuth() AuthConfig { return AuthConfig{} }

// NewAuth enables token auth with the given shared secret.
func NewAuth(secret []byte) AuthConfig {
	return AuthConfig{Enabled: true, Secret: append([]byte(nil), secret...)}
}

// Token computes the expected token for a request path.
func (a AuthConfig) Token(path string) string {
	mac := hmac.New(sha256.New, a.Secret)
	mac.Write([]byte(path))
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware rejects requests whose token does not match the path HMAC.
func (a AuthConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(AuthHeader)
		if token == "" {
			http.Error(w, "missing auth token", http.StatusUnauthorized)
			return
		}
		expected := a.Token(r.URL.Path)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
			http.Error(w, "invalid auth token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
