package restful

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeflare/restful/pkg/config"
	"github.com/edgeflare/restful/pkg/events"
	"github.com/edgeflare/restful/pkg/httputil"
	pg "github.com/edgeflare/restful/pkg/pgx"
	"github.com/edgeflare/restful/pkg/query"
	"github.com/edgeflare/restful/pkg/rest"
	"github.com/edgeflare/restful/pkg/rest/filter"
	"go.uber.org/zap"
)

func parsePermissions(names []string) ([]rest.Permission, error) {
	perms := make([]rest.Permission, 0, len(names))
	for _, name := range names {
		p, err := rest.ParsePermission(name)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// newResource turns a declaration into a rest.Resource. Settings left
// unset fall back to the server defaults at registration.
func newResource(api config.API, rc config.ResourceConfig, logger *zap.Logger) (rest.Resource, error) {
	kinds, err := rc.Kinds()
	if err != nil {
		return rest.Resource{}, err
	}

	res := rest.Resource{
		Name:         rc.Name,
		Prefix:       rc.Prefix,
		Table:        rc.Table,
		Lookup:       rc.Lookup,
		FilterFields: rc.FilterFields,
		SearchFields: rc.SearchFields,
		OrderFields:  rc.OrderFields,
		OuterJoin:    rc.OuterJoin,
		FilterKinds:  kinds,
		ReadOnly:     rc.ReadOnly,
		Only:         rc.Only,
	}

	if rc.Pagination != "" || rc.PageSize > 0 {
		style := api.Style(rc.Pagination, rc.PageSize)
		if style == nil {
			res.NoPagination = true
		} else {
			style.Base().Logger = logger
			res.Pagination = style
		}
	}

	if len(rc.Permissions) > 0 || rc.OwnerColumn != "" {
		names := rc.Permissions
		if len(names) == 0 {
			names = api.DefaultPermissions
		}
		if res.Permissions, err = parsePermissions(names); err != nil {
			return rest.Resource{}, fmt.Errorf("resource %q: %w", rc.Name, err)
		}
		if rc.OwnerColumn != "" {
			res.Permissions = append(res.Permissions, rest.IsOwner{Column: rc.OwnerColumn, Claim: rc.OwnerClaim})
		}
	}

	if rc.Fields != nil || rc.ReadOnlyFields != nil {
		res.Serializer = &rest.Serializer{Fields: rc.Fields, ReadOnlyFields: rc.ReadOnlyFields}
	}

	if len(rc.Expand) > 0 {
		res.Expandable = make(map[string]rest.Expandable, len(rc.Expand))
		for name, e := range rc.Expand {
			res.Expandable[name] = rest.Expandable{Relationship: e.Relationship, OuterJoin: e.OuterJoin}
		}
	}
	return res, nil
}

// newServer registers every configured resource on router. Expired list
// counts are swept until ctx is done.
func newServer(ctx context.Context, c *config.Config, conn pg.Conn, catalog filter.Catalog, router *httputil.Router, publisher events.Publisher, logger *zap.Logger) (*rest.Server, error) {
	perms, err := parsePermissions(c.API.DefaultPermissions)
	if err != nil {
		return nil, err
	}

	opts := []rest.Option{
		rest.WithRouter(router),
		rest.WithLogger(logger),
		rest.WithTrailingSlash(c.REST.TrailingSlash),
	}
	if style := c.API.Pagination(); style != nil {
		style.Base().Logger = logger
		opts = append(opts, rest.WithDefaultPagination(style))
	}
	if len(perms) > 0 {
		opts = append(opts, rest.WithDefaultPermissions(perms...))
	}
	if c.API.CountCacheTTL > 0 {
		cache := query.NewCountCache(c.API.CountCacheTTL)
		go sweep(ctx, cache, c.API.CountCacheTTL)
		opts = append(opts, rest.WithCountCache(cache))
	}
	if publisher != nil {
		opts = append(opts, rest.WithPublisher(publisher))
	}

	server := rest.NewServer(conn, catalog, opts...)
	for _, rc := range c.Resources {
		res, err := newResource(c.API, rc, logger)
		if err != nil {
			return nil, err
		}
		if err := server.Register(res); err != nil {
			return nil, err
		}
	}
	return server, nil
}

func sweep(ctx context.Context, cache *query.CountCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cache.CleanupExpired()
		}
	}
}
