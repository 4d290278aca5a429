package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/edgeflare/restful/pkg/rest/pagination"
	"github.com/mitchellh/mapstructure"
)

// Pagination style names.
const (
	PaginationPageNumber = "page_number"
	PaginationLinkHeader = "link_header"
	PaginationNone       = "none"
)

var ErrInvalidSetting = errors.New("invalid API setting")

// API holds the framework defaults shared by every resource. It is a value:
// Reload returns a new snapshot and never changes the one in use.
type API struct {
	DefaultPagination  string        `mapstructure:"default_pagination"`
	PageSize           int           `mapstructure:"page_size"`
	PageQueryParam     string        `mapstructure:"page_query_param"`
	PageSizeQueryParam string        `mapstructure:"page_size_query_param"`
	MaxPageSize        int           `mapstructure:"max_page_size"`
	Orphans            int           `mapstructure:"orphans"`
	LastPageStrings    []string      `mapstructure:"last_page_strings"`
	CountCacheTTL      time.Duration `mapstructure:"count_cache_ttl"`
	// DefaultPermissions are permission names applied to resources that
	// declare none.
	DefaultPermissions []string `mapstructure:"default_permissions"`
}

// DefaultAPI paginates by page number with pagination disabled until a page
// size is configured.
func DefaultAPI() API {
	return API{
		DefaultPagination: PaginationPageNumber,
		PageQueryParam:    pagination.DefaultPageQueryParam,
		CountCacheTTL:     30 * time.Second,
	}
}

// Reload returns a copy of a with the flat settings named "<prefix>.<name>"
// applied. Keys under other prefixes, or with more than one dot, are
// ignored. An unknown name under prefix is an error.
//
//	api, err := cfg.API.Reload(map[string]any{"restful.page_size": "20"}, "restful")
func (a API) Reload(settings map[string]any, prefix string) (API, error) {
	scoped := make(map[string]any)
	for key, val := range settings {
		keyfix, name, ok := strings.Cut(key, ".")
		if !ok || strings.Contains(name, ".") || keyfix != prefix {
			continue
		}
		scoped[name] = val
	}

	next := a
	next.LastPageStrings = slices.Clone(a.LastPageStrings)
	next.DefaultPermissions = slices.Clone(a.DefaultPermissions)

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeHook(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &next,
	})
	if err != nil {
		return a, err
	}
	if err := dec.Decode(scoped); err != nil {
		return a, fmt.Errorf("%w: %w", ErrInvalidSetting, err)
	}
	if err := next.validate(); err != nil {
		return a, err
	}
	return next, nil
}

func (a API) validate() error {
	switch a.DefaultPagination {
	case "", PaginationPageNumber, PaginationLinkHeader, PaginationNone:
	default:
		return fmt.Errorf("%w: default_pagination %q is not one of %s", ErrInvalidSetting, a.DefaultPagination,
			strings.Join([]string{PaginationPageNumber, PaginationLinkHeader, PaginationNone}, ", "))
	}
	for name, n := range map[string]int{
		"page_size":     a.PageSize,
		"max_page_size": a.MaxPageSize,
		"orphans":       a.Orphans,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, name)
		}
	}
	return nil
}

// Pagination builds the default style, nil for "none".
func (a API) Pagination() pagination.Style {
	return a.Style("", 0)
}

// Style builds the named pagination style from the API defaults, with
// pageSize replacing PageSize when positive. An empty name picks
// DefaultPagination.
func (a API) Style(name string, pageSize int) pagination.Style {
	base := pagination.PageNumber{
		PageSize:           a.PageSize,
		PageQueryParam:     a.PageQueryParam,
		PageSizeQueryParam: a.PageSizeQueryParam,
		MaxPageSize:        a.MaxPageSize,
		Orphans:            a.Orphans,
		LastPageStrings:    slices.Clone(a.LastPageStrings),
	}
	if pageSize > 0 {
		base.PageSize = pageSize
	}

	if name == "" {
		name = a.DefaultPagination
	}
	switch name {
	case PaginationNone:
		return nil
	case PaginationLinkHeader:
		return &pagination.LinkHeader{PageNumber: base}
	default:
		return &base
	}
}
