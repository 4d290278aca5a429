package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strings"

	"github.com/edgeflare/restful/pkg/httputil"
	"github.com/edgeflare/restful/pkg/pgx/schema"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// Serializer decides which columns of a row are written to responses and
// which may be set by request bodies.
type Serializer struct {
	// Fields are the exposed columns, every column when empty.
	Fields []string `mapstructure:"fields"`
	// ReadOnlyFields are exposed but never written. Nil means the primary
	// keys; an empty slice makes every field writable.
	ReadOnlyFields []string `mapstructure:"read_only_fields"`

	table    schema.Table
	writable []string
}

func (s *Serializer) bind(table schema.Table) (*Serializer, error) {
	b := &Serializer{table: table}
	if s != nil {
		b.Fields = slices.Clone(s.Fields)
		b.ReadOnlyFields = slices.Clone(s.ReadOnlyFields)
	}
	if len(b.Fields) == 0 {
		b.Fields = make([]string, len(table.Columns))
		for i, c := range table.Columns {
			b.Fields[i] = c.Name
		}
	}
	if b.ReadOnlyFields == nil {
		b.ReadOnlyFields = slices.Clone(table.PrimaryKeys)
	}

	for _, f := range slices.Concat(b.Fields, b.ReadOnlyFields) {
		if _, ok := table.Column(f); !ok {
			return nil, fmt.Errorf("serializer field %q is not a column of %s", f, table.Key())
		}
	}
	for _, f := range b.Fields {
		if !slices.Contains(b.ReadOnlyFields, f) {
			b.writable = append(b.writable, f)
		}
	}
	return b, nil
}

// Writable returns the fields request bodies may set.
func (s *Serializer) Writable() []string {
	return slices.Clone(s.writable)
}

// Schema is the JSON Schema request bodies are validated against.
func (s *Serializer) Schema(partial bool) map[string]any {
	return s.table.ObjectSchema(s.writable, partial)
}

// ValidationError lists the messages of every invalid field. It is
// answered with 400 and the map as body.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid fields: " + strings.Join(names, ", ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Load decodes a JSON object from body and validates it against the
// writable fields. Read-only and unknown keys are dropped. Unless partial,
// required columns must be present.
func (s *Serializer) Load(body io.Reader, partial bool) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			raw = map[string]any{}
		} else {
			return nil, &httputil.HTTPError{Code: http.StatusBadRequest, Message: "JSON parse error", Err: err}
		}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, httputil.NewError(http.StatusBadRequest, "Expected a JSON object")
	}

	data := make(map[string]any, len(obj))
	for k, v := range obj {
		if slices.Contains(s.writable, k) {
			data[k] = v
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(s.Schema(partial)),
		gojsonschema.NewGoLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", s.table.Key(), err)
	}
	if result.Valid() {
		return data, nil
	}

	verr := &ValidationError{}
	for _, re := range result.Errors() {
		field := re.Field()
		if re.Type() == "required" {
			if p, ok := re.Details()["property"].(string); ok {
				field = p
			}
			verr.add(field, "This field is required.")
			continue
		}
		verr.add(field, re.Description())
	}
	return nil, verr
}

// Dump keeps the exposed fields of row, and the extra keys given, in their
// JSON form.
func (s *Serializer) Dump(row map[string]any, extra ...string) map[string]any {
	out := make(map[string]any, len(s.Fields)+len(extra))
	for _, f := range s.Fields {
		if v, ok := row[f]; ok {
			out[f] = jsonValue(v)
		}
	}
	for _, k := range extra {
		if v, ok := row[k]; ok {
			out[k] = v
		}
	}
	return out
}

// DumpAll applies Dump to rows.
func (s *Serializer) DumpAll(rows []map[string]any, extra ...string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = s.Dump(row, extra...)
	}
	return out
}

// jsonValue converts driver values with no useful JSON encoding.
func jsonValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	default:
		return v
	}
}
