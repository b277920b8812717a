package mapping

import (
	"fmt"
	"sort"
)

// ColumnType is the relational type assigned to an attribute on first sight.
type ColumnType int

const (
	ColumnString ColumnType = iota + 1
	ColumnNumber
	ColumnBool
	ColumnJSON
)

func (t ColumnType) String() string {
	switch t {
	case ColumnString:
		return "STRING"
	case ColumnNumber:
		return "NUMBER"
	case ColumnBool:
		return "BOOL"
	case ColumnJSON:
		return "JSON"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// DatabaseType returns the Postgres type used for the column.
func (t ColumnType) DatabaseType() string {
	switch t {
	case ColumnString:
		return "varchar"
	case ColumnNumber:
		return "numeric"
	case ColumnBool:
		return "boolean"
	case ColumnJSON:
		return "jsonb"
	default:
		return ""
	}
}

// Column is one mapped attribute.
type Column struct {
	Name string
	Type ColumnType
}

func (c Column) String() string {
	return c.Name + " " + c.Type.DatabaseType()
}

// TableSchema is the inferred structure of one destination table.
//
// Columns are only ever appended; a column is never retyped or removed.
// An attribute name is either a column or unsupported, never both.
type TableSchema struct {
	TableName string

	columns     map[string]Column
	order       []string
	unsupported map[string]struct{}
}

// NewTableSchema creates an empty schema for tableName.
func NewTableSchema(tableName string) *TableSchema {
	return &TableSchema{
		TableName:   tableName,
		columns:     make(map[string]Column),
		unsupported: make(map[string]struct{}),
	}
}

// AddColumn appends c unless the name is already known. It reports whether
// the column was added.
func (s *TableSchema) AddColumn(c Column) bool {
	if s.Knows(c.Name) {
		return false
	}
	s.columns[c.Name] = c
	s.order = append(s.order, c.Name)
	return true
}

// AddUnsupported records name as permanently excluded from mapping.
func (s *TableSchema) AddUnsupported(name string) bool {
	if s.Knows(name) {
		return false
	}
	s.unsupported[name] = struct{}{}
	return true
}

// HasColumn reports whether name is mapped to a column.
func (s *TableSchema) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// IsUnsupported reports whether name was excluded from mapping.
func (s *TableSchema) IsUnsupported(name string) bool {
	_, ok := s.unsupported[name]
	return ok
}

// Knows reports whether name is either a column or an unsupported attribute.
func (s *TableSchema) Knows(name string) bool {
	return s.HasColumn(name) || s.IsUnsupported(name)
}

// Columns returns the columns in the order they were added.
func (s *TableSchema) Columns() []Column {
	out := make([]Column, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.columns[name])
	}
	return out
}

// UnsupportedAttributes returns the unsupported attribute names sorted.
func (s *TableSchema) UnsupportedAttributes() []string {
	out := make([]string, 0, len(s.unsupported))
	for name := range s.unsupported {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy safe to read without holding the registry lock.
func (s *TableSchema) Clone() *TableSchema {
	c := NewTableSchema(s.TableName)
	for _, name := range s.order {
		c.columns[name] = s.columns[name]
	}
	c.order = append(c.order, s.order...)
	for name := range s.unsupported {
		c.unsupported[name] = struct{}{}
	}
	return c
}

func (s *TableSchema) String() string {
	return fmt.Sprintf("TableSchema{table=%s columns=%v unsupported=%v}", s.TableName, s.Columns(), s.UnsupportedAttributes())
}
