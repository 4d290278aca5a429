package config

import (
	"fmt"

	"github.com/edgeflare/restful/pkg/rest/filter"
)

// ResourceConfig declares a table served over REST.
//
//	resources:
//	  - name: books
//	    table: public.books
//	    filter_fields: [books.title, authors.name]
//	    search_fields: [books.title]
//	    order_fields: [books.title, books.pages]
//	    expand:
//	      author: {}
//	    permissions: [is_authenticated_or_read_only]
type ResourceConfig struct {
	Name   string `mapstructure:"name"`
	Prefix string `mapstructure:"prefix"`
	Table  string `mapstructure:"table"`
	Lookup string `mapstructure:"lookup"`

	FilterFields []filter.Field `mapstructure:"filter_fields"`
	SearchFields []filter.Field `mapstructure:"search_fields"`
	OrderFields  []filter.Field `mapstructure:"order_fields"`
	OuterJoin    bool           `mapstructure:"outer_join"`
	FilterKinds  []string       `mapstructure:"filter_kinds"`

	// Pagination names a style and overrides API.DefaultPagination.
	Pagination string `mapstructure:"pagination"`
	PageSize   int    `mapstructure:"page_size"`

	Permissions []string `mapstructure:"permissions"`
	// OwnerColumn adds an IsOwner object permission on that column.
	OwnerColumn string `mapstructure:"owner_column"`
	OwnerClaim  string `mapstructure:"owner_claim"`

	Fields         []string `mapstructure:"fields"`
	ReadOnlyFields []string `mapstructure:"read_only_fields"`

	Expand   map[string]ExpandConfig `mapstructure:"expand"`
	ReadOnly bool                    `mapstructure:"read_only"`
	Only     []string                `mapstructure:"only"`
}

type ExpandConfig struct {
	Relationship string `mapstructure:"relationship"`
	OuterJoin    bool   `mapstructure:"outer_join"`
}

// Kinds parses FilterKinds, nil when none are listed.
func (r ResourceConfig) Kinds() ([]filter.Kind, error) {
	if len(r.FilterKinds) == 0 {
		return nil, nil
	}
	kinds := make([]filter.Kind, 0, len(r.FilterKinds))
	for _, name := range r.FilterKinds {
		k, ok := filter.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown filter kind %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (r ResourceConfig) validate() error {
	if r.Name == "" {
		return fmt.Errorf("resource has no name")
	}
	if r.Table == "" {
		return fmt.Errorf("resource %q has no table", r.Name)
	}
	switch r.Pagination {
	case "", PaginationPageNumber, PaginationLinkHeader, PaginationNone:
	default:
		return fmt.Errorf("resource %q: unknown pagination %q", r.Name, r.Pagination)
	}
	if _, err := r.Kinds(); err != nil {
		return fmt.Errorf("resource %q: %w", r.Name, err)
	}
	return nil
}
