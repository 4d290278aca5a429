/*
Package filter narrows a query from request query-string parameters.

Three kinds of parameter are understood, each keyed by a dotted path that
starts at the resource's root table and walks its relationships:

	| Parameter            | Example                          | Effect                                   |
	|----------------------|----------------------------------|------------------------------------------|
	| filter[path]=v1,v2   | filter[author.name]=Tolkien      | path = v1 OR path = v2                   |
	| search[path]=v1,v2   | search[title]=ring               | path ILIKE %v1% OR ...; array: v IN path |
	| order[path]=asc|desc | order[author.name]=desc          | ORDER BY path; anything but desc is ASC  |

Distinct keys combine with AND. A key whose path does not resolve to a field
declared for its kind is ignored. Relationships the path walks through are
joined once, as inner joins unless the Spec asks for outer joins.
*/
package filter
