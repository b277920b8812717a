// Package mapping infers relational table schemas from schemaless documents
// and evolves them additively as new attributes appear.
package mapping

import (
	"fmt"
	"log/slog"
)

// InferColumnType maps a single value to its column type by structural kind.
// Arrays must be filtered out by the caller; they are rejected here like any
// other kind outside {boolean, number, string, object}.
func InferColumnType(v any) (ColumnType, error) {
	switch kind := KindOf(v); kind {
	case KindBool:
		return ColumnBool, nil
	case KindNumber:
		return ColumnNumber, nil
	case KindString:
		return ColumnString, nil
	case KindObject:
		return ColumnJSON, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedValueKind, kind)
	}
}

// Mapper builds table schemas from sample documents.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper returns a Mapper that logs unsupported attributes to logger.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger.With("component", "schema-mapper")}
}

// MapNewTable builds a fresh schema for tableName from doc. Array attributes
// are recorded as unsupported; null attributes are left unmapped until a
// typed value shows up. The registry is not touched.
func (m *Mapper) MapNewTable(doc Document, tableName string) (*TableSchema, error) {
	schema := NewTableSchema(tableName)
	err := m.visit(schema, doc, func(name string, v any) error {
		t, err := InferColumnType(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
		schema.AddColumn(Column{Name: name, Type: t})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// ComputeNewColumns returns the columns doc would add to schema. Newly seen
// array attributes are added to the schema's unsupported set in place and are
// never offered as columns. The returned columns are not merged into schema.
func (m *Mapper) ComputeNewColumns(schema *TableSchema, doc Document) ([]Column, error) {
	var out []Column
	err := m.visit(schema, doc, func(name string, v any) error {
		if schema.HasColumn(name) {
			return nil
		}
		t, err := InferColumnType(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", name, err)
		}
		out = append(out, Column{Name: name, Type: t})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// visit walks the top-level attributes of doc that schema does not already
// treat as unsupported, diverting arrays into the unsupported set.
func (m *Mapper) visit(schema *TableSchema, doc Document, fn func(name string, v any) error) error {
	for _, name := range doc.Keys() {
		if schema.IsUnsupported(name) {
			continue
		}
		v := doc[name]
		switch KindOf(v) {
		case KindNull:
			continue
		case KindArray:
			if schema.AddUnsupported(name) {
				m.logger.Warn("Skipping unsupported value type attribute",
					"table", schema.TableName,
					"attribute", name,
					"type", KindArray.String(),
				)
			}
			continue
		}
		if err := fn(name, v); err != nil {
			return err
		}
	}
	return nil
}
