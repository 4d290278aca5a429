package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// OIDCProviderConfig holds the configuration for the OIDC provider
type OIDCProviderConfig struct {
	ClientID     string `json:"client_id" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret" mapstructure:"client_secret"`
	Issuer       string `json:"issuer" mapstructure:"issuer"`
}

// Introspector resolves a bearer token to its introspection response.
type Introspector interface {
	Introspect(ctx context.Context, token string) (*oidc.IntrospectionResponse, error)
}

// OIDCProvider introspects tokens at the issuer's introspection endpoint.
type OIDCProvider struct {
	server rs.ResourceServer
}

// NewOIDCProvider discovers the issuer and authenticates as the client.
func NewOIDCProvider(ctx context.Context, cfg OIDCProviderConfig) (*OIDCProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Issuer == "" {
		return nil, errors.New("oidc: client_id, client_secret and issuer are required")
	}
	server, err := rs.NewResourceServerClientCredentials(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("oidc: resource server: %w", err)
	}
	return &OIDCProvider{server: server}, nil
}

func (p *OIDCProvider) Introspect(ctx context.Context, token string) (*oidc.IntrospectionResponse, error) {
	return rs.Introspect[*oidc.IntrospectionResponse](ctx, p.server, token)
}

// VerifyOIDCToken is middleware that verifies OIDC tokens in Authorization headers.
// By default, it sends a 401 Unauthorized response if the token is missing or invalid.
// If send401Unauthorized is false, requests without a bearer token (anonymous or
// using another scheme such as Basic) continue untouched. Invalid bearer tokens
// are always rejected.
func VerifyOIDCToken(introspector Introspector, send401Unauthorized ...bool) func(http.Handler) http.Handler {
	send401 := true
	if len(send401Unauthorized) > 0 {
		send401 = send401Unauthorized[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				if send401 {
					httputil.Error(w, http.StatusUnauthorized, "Authorization header missing")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// scheme is case-insensitive
			if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "bearer ") {
				if send401 {
					httputil.Error(w, http.StatusUnauthorized, "Invalid token format")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := introspector.Introspect(r.Context(), strings.TrimSpace(authHeader[7:]))
			if err != nil || user == nil || !user.Active {
				httputil.Error(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), httputil.OIDCUserCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
