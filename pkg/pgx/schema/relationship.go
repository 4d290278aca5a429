package schema

import (
	"slices"
	"strings"

	"github.com/edgeflare/restful/pkg/query"
)

// Relationship is a navigable link from one table to another derived from a
// foreign key. Forward links follow the key from the referencing table; a
// reverse link (Many) goes from the referenced table back to the rows
// referencing it.
type Relationship struct {
	Name         string `json:"name"`
	Target       string `json:"target"`
	Column       string `json:"column"`
	TargetColumn string `json:"target_column"`
	Many         bool   `json:"many,omitempty"`
}

// Join returns the join clause that brings the target of r into a query
// over from.
func (r Relationship) Join(from, target Table) query.Join {
	return query.Join{
		Table: target.Ref(),
		On:    query.On(target.Ref().Col(r.TargetColumn), from.Ref().Col(r.Column)),
	}
}

// linkRelationships derives relationships for every table in c from the
// foreign keys. A forward link on books.author_id is named "author"; the
// reverse link on the referenced table is named after the referencing table
// ("books"). The first relationship claiming a name keeps it.
func linkRelationships(c Catalog) {
	for key, t := range c {
		t.Relationships = nil
		c[key] = t
	}

	for _, key := range sortedKeys(c) {
		src := c[key]
		for _, fk := range src.ForeignKeys {
			targetKey := fk.ReferencedSchema + "." + fk.ReferencedTable
			if fk.ReferencedSchema == "" {
				targetKey = src.Schema + "." + fk.ReferencedTable
			}
			target, ok := c[targetKey]
			if !ok {
				continue
			}

			src = addRelationship(src, Relationship{
				Name:         forwardName(fk),
				Target:       targetKey,
				Column:       fk.Column,
				TargetColumn: fk.ReferencedColumn,
			})
			c[key] = src

			// self references share the same Table value
			if targetKey == key {
				target = src
			}
			target = addRelationship(target, Relationship{
				Name:         src.Name,
				Target:       key,
				Column:       fk.ReferencedColumn,
				TargetColumn: fk.Column,
				Many:         true,
			})
			c[targetKey] = target
			if targetKey == key {
				src = target
			}
		}
	}
}

func forwardName(fk ForeignKey) string {
	if name, ok := strings.CutSuffix(fk.Column, "_id"); ok && name != "" {
		return name
	}
	return fk.ReferencedTable
}

func addRelationship(t Table, r Relationship) Table {
	if _, taken := t.Relationship(r.Name); taken {
		return t
	}
	t.Relationships = append(t.Relationships, r)
	return t
}

func sortedKeys(c Catalog) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
