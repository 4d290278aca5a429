package rest

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/restful/pkg/httputil"
)

// Permission grants or denies a request. HasPermission runs before every
// action; HasObjectPermission runs once the object of a detail action is
// loaded.
type Permission interface {
	HasPermission(r *http.Request, v *View) bool
	HasObjectPermission(r *http.Request, v *View, obj map[string]any) bool
}

// AllowAny grants every request.
type AllowAny struct{}

func (AllowAny) HasPermission(*http.Request, *View) bool { return true }

func (AllowAny) HasObjectPermission(*http.Request, *View, map[string]any) bool { return true }

// IsAuthenticated grants requests carrying a basic auth or OIDC user.
type IsAuthenticated struct{}

func (IsAuthenticated) HasPermission(r *http.Request, _ *View) bool {
	return authenticated(r)
}

func (IsAuthenticated) HasObjectPermission(*http.Request, *View, map[string]any) bool { return true }

// ReadOnly grants safe methods only.
type ReadOnly struct{}

func (ReadOnly) HasPermission(r *http.Request, _ *View) bool {
	return safeMethod(r.Method)
}

func (ReadOnly) HasObjectPermission(r *http.Request, _ *View, _ map[string]any) bool {
	return safeMethod(r.Method)
}

// IsAuthenticatedOrReadOnly grants safe methods to everyone and the rest to
// authenticated users.
type IsAuthenticatedOrReadOnly struct{}

func (IsAuthenticatedOrReadOnly) HasPermission(r *http.Request, _ *View) bool {
	return safeMethod(r.Method) || authenticated(r)
}

func (IsAuthenticatedOrReadOnly) HasObjectPermission(*http.Request, *View, map[string]any) bool {
	return true
}

// HasClaim grants requests whose claims hold Value at Path, a dotted path
// such as "realm_access.roles" or "groups[0]". Array claims grant when any
// element equals Value.
type HasClaim struct {
	Path  string
	Value string
}

func (p HasClaim) HasPermission(r *http.Request, _ *View) bool {
	claim, ok := lookupClaim(Claims(r), p.Path)
	if !ok {
		return false
	}
	if list, ok := claim.([]any); ok {
		return slices.ContainsFunc(list, func(v any) bool { return fmt.Sprint(v) == p.Value })
	}
	return fmt.Sprint(claim) == p.Value
}

func (HasClaim) HasObjectPermission(*http.Request, *View, map[string]any) bool { return true }

// IsOwner grants authenticated users access to objects whose Column equals
// their Claim, "sub" when empty.
type IsOwner struct {
	Column string
	Claim  string
}

func (IsOwner) HasPermission(r *http.Request, _ *View) bool {
	return authenticated(r)
}

func (p IsOwner) HasObjectPermission(r *http.Request, _ *View, obj map[string]any) bool {
	claim, ok := lookupClaim(Claims(r), cmp.Or(p.Claim, "sub"))
	if !ok {
		return false
	}
	value, ok := obj[p.Column]
	return ok && value != nil && fmt.Sprint(jsonValue(value)) == fmt.Sprint(claim)
}

// ParsePermission maps a configuration name to a built-in permission.
func ParsePermission(name string) (Permission, error) {
	switch strings.ToLower(name) {
	case "allow_any":
		return AllowAny{}, nil
	case "is_authenticated":
		return IsAuthenticated{}, nil
	case "read_only":
		return ReadOnly{}, nil
	case "is_authenticated_or_read_only":
		return IsAuthenticatedOrReadOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown permission %q", name)
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func authenticated(r *http.Request) bool {
	if _, ok := httputil.BasicAuthUser(r); ok {
		return true
	}
	_, ok := httputil.OIDCUser(r)
	return ok
}

// Claims returns the claims of the authenticated user: the introspection
// response of an OIDC token, or sub and username for a basic auth user.
// Anonymous requests have no claims.
func Claims(r *http.Request) map[string]any {
	if user, ok := httputil.OIDCUser(r); ok {
		b, err := json.Marshal(user)
		if err != nil {
			return nil
		}
		var claims map[string]any
		if err := json.Unmarshal(b, &claims); err != nil {
			return nil
		}
		return claims
	}
	if user, ok := httputil.BasicAuthUser(r); ok {
		return map[string]any{"sub": user, "username": user}
	}
	return nil
}

// lookupClaim walks a dotted path with optional [n] indexes.
func lookupClaim(claims map[string]any, path string) (any, bool) {
	path = strings.TrimPrefix(path, ".")
	if claims == nil || path == "" {
		return nil, false
	}

	var current any = claims
	for _, key := range strings.Split(path, ".") {
		index := -1
		if open := strings.IndexByte(key, '['); open >= 0 && strings.HasSuffix(key, "]") {
			n, err := strconv.Atoi(key[open+1 : len(key)-1])
			if err != nil || n < 0 {
				return nil, false
			}
			key, index = key[:open], n
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}

		if index >= 0 {
			list, ok := current.([]any)
			if !ok || index >= len(list) {
				return nil, false
			}
			current = list[index]
		}
	}
	return current, true
}
