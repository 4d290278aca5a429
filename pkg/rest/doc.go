// Package rest serves PostgreSQL tables as REST resources.
//
// A Resource names a root table, the fields clients may filter, search and
// order by, a pagination style, permissions and extra actions. Register
// validates it against the schema catalog and binds its routes:
//
//	Route                  | Name            | Actions
//	-----------------------|-----------------|-------------------------------------
//	/{prefix}/             | {name}-list     | list (GET), create (POST)
//	/{prefix}/{action}/    | {name}-{action} | list actions
//	/{prefix}/{lookup}/    | {name}-detail   | retrieve (GET), update (PUT),
//	                       |                 | partial_update (PATCH), destroy (DELETE)
//	/{prefix}/{lookup}/{action}/ | {name}-{action} | detail actions
//
// Lists and detail routes read the query string:
//
//	Parameter              | Description
//	-----------------------|------------------------------------------------
//	?filter[author.name]=a | equality, comma separated values match any
//	?search[title]=ring    | case-insensitive substring, array membership
//	?order[title]=desc     | sort, in order of appearance
//	?page=2, ?page=last    | page number (paginated resources)
//	?page_size=50          | page size, when the style allows it
//	?expand=author         | embed a declared forward relationship
//
// Paths walk relationships from the root table; parameters naming
// undeclared fields or unknown relationships are ignored.
//
// Mutations answer with the stored row unless the request carries
// "Prefer: return=minimal" or "Prefer: return=headers-only".
//
// Example usage:
//
//	srv := rest.NewServer(pool, cache, rest.WithDefaultPagination(&pagination.PageNumber{PageSize: 20}))
//	err := srv.Register(rest.Resource{
//		Name:         "books",
//		Table:        "books",
//		FilterFields: []filter.Field{filter.F("public.authors", "name")},
//		SearchFields: []filter.Field{filter.F("public.books", "title")},
//		OrderFields:  []filter.Field{filter.F("public.books", "title")},
//		Expandable:   map[string]rest.Expandable{"author": {}},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(http.ListenAndServe(":8080", srv))
package rest
