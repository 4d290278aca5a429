package pgx

import (
	"github.com/jackc/pgx/v5"
)

// CollectMaps reads every row into a column-name keyed map and closes rows.
func CollectMaps(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	columnNames := make([]string, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columnNames[i] = fd.Name
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePointers := make([]any, len(columnNames))
		for i := range values {
			valuePointers[i] = &values[i]
		}

		if err := rows.Scan(valuePointers...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columnNames))
		for i, name := range columnNames {
			row[name] = values[i]
		}
		result = append(result, row)
	}

	return result, rows.Err()
}
