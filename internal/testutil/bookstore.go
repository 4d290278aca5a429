// Package testutil holds fixtures shared by package tests.
package testutil

import "github.com/edgeflare/restful/pkg/pgx/schema"

// Bookstore returns a catalog of authors, publishers and books. Books
// reference an author and a publisher; authors carry a text[] of tags.
func Bookstore() schema.Catalog {
	return schema.NewCatalog(
		schema.Table{
			Schema:      "public",
			Name:        "authors",
			Type:        schema.TypeTable,
			PrimaryKeys: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", DataType: "integer", IsPrimaryKey: true, HasDefault: true},
				{Name: "name", DataType: "text"},
				{Name: "tags", DataType: "ARRAY", ElementType: "text", IsNullable: true},
			},
		},
		schema.Table{
			Schema:      "public",
			Name:        "publishers",
			Type:        schema.TypeTable,
			PrimaryKeys: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", DataType: "integer", IsPrimaryKey: true, HasDefault: true},
				{Name: "name", DataType: "text"},
			},
		},
		schema.Table{
			Schema:      "public",
			Name:        "books",
			Type:        schema.TypeTable,
			PrimaryKeys: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", DataType: "integer", IsPrimaryKey: true, HasDefault: true},
				{Name: "title", DataType: "text"},
				{Name: "pages", DataType: "integer", IsNullable: true},
				{Name: "author_id", DataType: "integer"},
				{Name: "publisher_id", DataType: "integer", IsNullable: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{Column: "author_id", ReferencedSchema: "public", ReferencedTable: "authors", ReferencedColumn: "id"},
				{Column: "publisher_id", ReferencedSchema: "public", ReferencedTable: "publishers", ReferencedColumn: "id"},
			},
		},
	)
}
