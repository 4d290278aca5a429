package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/edgeflare/restful/pkg/httputil"
)

// BasicAuthConfig holds the username-password pairs for basic authentication.
type BasicAuthConfig struct {
	Credentials map[string]string
	// Optional lets requests without Basic credentials through anonymously,
	// leaving the decision to resource permissions. Wrong credentials are
	// still rejected.
	Optional bool
}

// BasicAuthCreds creates a new instance of BasicAuthConfig with multiple username/password pairs.
func BasicAuthCreds(credentials map[string]string) *BasicAuthConfig {
	return &BasicAuthConfig{
		Credentials: credentials,
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
	httputil.Error(w, http.StatusUnauthorized, message)
}

// VerifyBasicAuth is a middleware function for basic authentication.
func VerifyBasicAuth(config *BasicAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w, "Authorization header missing")
				return
			}

			encodedCredentials, ok := strings.CutPrefix(authHeader, "Basic ")
			if !ok {
				if config.Optional {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w, "Invalid authorization format")
				return
			}

			credentials, err := base64.StdEncoding.DecodeString(encodedCredentials)
			if err != nil {
				unauthorized(w, "Invalid base64 encoding")
				return
			}

			username, password, ok := strings.Cut(string(credentials), ":")
			if !ok {
				unauthorized(w, "Invalid credentials format")
				return
			}

			validPassword, ok := config.Credentials[username]
			if !ok || subtle.ConstantTimeCompare([]byte(validPassword), []byte(password)) != 1 {
				unauthorized(w, "Invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.BasicAuthCtxKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
