package postgres

import (
	"strconv"
	"strings"

	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/lib/pq"
)

// Ident quotes an identifier. Attribute names keep their case and may contain
// any character.
func Ident(name string) string {
	return pq.QuoteIdentifier(name)
}

// CreateTableSQL returns the CREATE TABLE IF NOT EXISTS statement for schema.
func CreateTableSQL(schema *mapping.TableSchema) string {
	cols := schema.Columns()
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = columnDef(c)
	}
	return "CREATE TABLE IF NOT EXISTS " + Ident(schema.TableName) + " (" + strings.Join(defs, ", ") + ")"
}

// DropTableSQL returns the DROP TABLE IF EXISTS statement for tableName.
func DropTableSQL(tableName string) string {
	return "DROP TABLE IF EXISTS " + Ident(tableName)
}

// AddColumnSQL returns the ALTER TABLE statement adding c. It is a no-op when
// the column already exists.
func AddColumnSQL(tableName string, c mapping.Column) string {
	return "ALTER TABLE " + Ident(tableName) + " ADD COLUMN IF NOT EXISTS " + columnDef(c)
}

// InsertSQL returns a positional INSERT for cols. JSON columns are cast to
// jsonb at the statement level. With no columns the row gets all defaults.
func InsertSQL(tableName string, cols []mapping.Column) string {
	if len(cols) == 0 {
		return "INSERT INTO " + Ident(tableName) + " DEFAULT VALUES"
	}

	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		names[i] = Ident(c.Name)
		params[i] = placeholder(i + 1)
		if c.Type == mapping.ColumnJSON {
			params[i] += "::jsonb"
		}
	}
	return "INSERT INTO " + Ident(tableName) + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"
}

// DeleteSQL returns a DELETE scoped to rows whose key columns equal the bound
// parameters, in keys order.
func DeleteSQL(tableName string, keys []string) string {
	preds := make([]string, len(keys))
	for i, k := range keys {
		preds[i] = Ident(k) + " = " + placeholder(i+1)
	}
	return "DELETE FROM " + Ident(tableName) + " WHERE " + strings.Join(preds, " AND ")
}

func columnDef(c mapping.Column) string {
	return Ident(c.Name) + " " + c.Type.DatabaseType()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
