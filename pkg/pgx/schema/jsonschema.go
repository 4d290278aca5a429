package schema

import (
	"slices"
	"strings"
)

// ColumnSchema maps a column's PostgreSQL type to a JSON Schema fragment.
// Nullable columns also accept null.
func ColumnSchema(col Column) map[string]any {
	var s map[string]any
	if col.IsArray() {
		s = map[string]any{"type": "array", "items": typeSchema(col.ElementType)}
	} else {
		s = typeSchema(col.DataType)
	}
	if t, ok := s["type"].(string); ok && col.IsNullable {
		s["type"] = []string{t, "null"}
	}
	return s
}

// typeSchema covers both information_schema data_type names and udt names
// of array elements.
func typeSchema(dataType string) map[string]any {
	switch strings.ToLower(dataType) {
	case "smallint", "int2":
		return map[string]any{"type": "integer", "format": "int16"}
	case "integer", "int4":
		return map[string]any{"type": "integer", "format": "int32"}
	case "bigint", "int8":
		return map[string]any{"type": "integer", "format": "int64"}
	case "real", "float4":
		return map[string]any{"type": "number", "format": "float"}
	case "double precision", "float8":
		return map[string]any{"type": "number", "format": "double"}
	case "numeric", "decimal":
		return map[string]any{"type": "number"}
	case "boolean", "bool":
		return map[string]any{"type": "boolean"}
	case "date":
		return map[string]any{"type": "string", "format": "date"}
	case "timestamp with time zone", "timestamptz":
		return map[string]any{"type": "string", "format": "date-time"}
	case "uuid":
		return map[string]any{"type": "string", "format": "uuid"}
	case "json", "jsonb":
		return map[string]any{}
	default:
		return map[string]any{"type": "string"}
	}
}

// ObjectSchema describes a row of t limited to fields (all columns when
// fields is empty). Unless partial, non-nullable columns without a default
// are required.
func (t Table) ObjectSchema(fields []string, partial bool) map[string]any {
	properties := make(map[string]any)
	required := []string{}

	for _, col := range t.Columns {
		if len(fields) > 0 && !slices.Contains(fields, col.Name) {
			continue
		}
		properties[col.Name] = ColumnSchema(col)
		if !partial && !col.IsNullable && !col.HasDefault {
			required = append(required, col.Name)
		}
	}

	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
