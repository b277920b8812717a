package replication

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guidewire-oss/nosql2sql/internal/mapping"
	"github.com/guidewire-oss/nosql2sql/internal/metrics"
	"github.com/guidewire-oss/nosql2sql/internal/postgres"
)

// reservedTableChar cannot appear in destination table names.
const reservedTableChar = "&"

// Executor runs a statement against the relational sink. *sql.DB satisfies it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options configures table naming and row identity.
type Options struct {
	// TableName is the static destination table, used when
	// DiscriminatorAttribute is empty.
	TableName string
	// DiscriminatorAttribute names the attribute whose string value selects
	// the destination table.
	DiscriminatorAttribute string
	PartitionKey           string
	SortKey                string
	// RecreateTables drops each table before it is first created.
	RecreateTables bool
	// Filter, when set, skips documents it does not match.
	Filter *Filter
}

// Result describes the outcome of one Apply call.
type Result struct {
	Table        string
	Kind         MutationKind
	RowsAffected int64
	Skipped      bool
}

// Applier turns a document mutation into DDL and DML against the sink.
//
// Schema resolution is serialized per table through the registry. The
// statements of one Apply are independent round trips; no transaction spans
// them.
type Applier struct {
	db       Executor
	registry *mapping.Registry
	mapper   *mapping.Mapper
	opts     Options
	logger   *slog.Logger
}

func NewApplier(db Executor, registry *mapping.Registry, opts Options, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = mapping.NewRegistry()
	}
	return &Applier{
		db:       db,
		registry: registry,
		mapper:   mapping.NewMapper(logger),
		opts:     opts,
		logger:   logger.With("component", "applier"),
	}
}

// Registry returns the schema registry the applier evolves.
func (a *Applier) Registry() *mapping.Registry { return a.registry }

// Apply writes doc to its destination table according to kind.
func (a *Applier) Apply(ctx context.Context, doc mapping.Document, kind MutationKind) (Result, error) {
	if !kind.valid() {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedMutationKind, kind)
	}

	start := time.Now()
	res, err := a.apply(ctx, doc, kind)

	outcome := metrics.OutcomeApplied
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
	case res.Skipped:
		outcome = metrics.OutcomeSkipped
	}
	metrics.MutationsApplied.WithLabelValues(kind.String(), outcome).Inc()
	metrics.ApplyLatency.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())

	return res, err
}

func (a *Applier) apply(ctx context.Context, doc mapping.Document, kind MutationKind) (Result, error) {
	res := Result{Kind: kind}

	if a.opts.Filter != nil {
		ok, err := a.opts.Filter.Match(doc)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped = true
			return res, nil
		}
	}

	table, err := a.TableName(doc)
	if err != nil {
		return res, err
	}
	res.Table = table

	schema, err := a.resolveSchema(ctx, table, doc)
	if err != nil {
		return res, err
	}

	row, err := project(schema, doc)
	if err != nil {
		return res, fmt.Errorf("table %s: %w", table, err)
	}

	switch kind {
	case Insert:
		res.RowsAffected, err = a.insert(ctx, table, row)
	case Update:
		res.RowsAffected, err = a.replace(ctx, table, row)
	case Delete:
		res.RowsAffected, err = a.delete(ctx, table, row)
	}
	return res, err
}

// TableName resolves the destination table of doc.
func (a *Applier) TableName(doc mapping.Document) (string, error) {
	if a.opts.DiscriminatorAttribute == "" {
		return a.opts.TableName, nil
	}
	v, ok := doc.String(a.opts.DiscriminatorAttribute)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingDiscriminator, a.opts.DiscriminatorAttribute)
	}
	return EscapeTableName(v), nil
}

// EscapeTableName replaces the reserved separator with an underscore.
func EscapeTableName(name string) string {
	return strings.ReplaceAll(name, reservedTableChar, "_")
}

// DropTable drops the backing table. The registry keeps its schema, so a later
// document for the same table reuses it instead of mapping afresh.
func (a *Applier) DropTable(ctx context.Context, table string) error {
	a.logger.Info("Dropping table", "table", table)
	if err := a.ddl(ctx, "drop", postgres.DropTableSQL(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

// Schemas returns a copy of every registered table schema ordered by table
// name. Dropped tables are still listed.
func (a *Applier) Schemas() []*mapping.TableSchema {
	names := a.registry.Tables()
	out := make([]*mapping.TableSchema, 0, len(names))
	for _, name := range names {
		if s, ok := a.registry.Get(name); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a *Applier) resolveSchema(ctx context.Context, table string, doc mapping.Document) (*mapping.TableSchema, error) {
	return a.registry.Update(table, func(current *mapping.TableSchema) (*mapping.TableSchema, error) {
		if current == nil {
			schema, err := a.mapper.MapNewTable(doc, table)
			if err != nil {
				return nil, fmt.Errorf("map table %s: %w", table, err)
			}
			if err := a.createTable(ctx, schema); err != nil {
				return nil, err
			}
			metrics.UnsupportedAttributes.Add(float64(len(schema.UnsupportedAttributes())))
			return schema, nil
		}

		before := len(current.UnsupportedAttributes())
		cols, err := a.mapper.ComputeNewColumns(current, doc)
		if err != nil {
			return nil, fmt.Errorf("evolve table %s: %w", table, err)
		}
		metrics.UnsupportedAttributes.Add(float64(len(current.UnsupportedAttributes()) - before))

		for _, c := range cols {
			a.logger.Info("Adding column", "table", table, "column", c.Name, "type", c.Type.DatabaseType())
			// A failed ALTER usually means a concurrent writer added the
			// column first; the column is recorded either way.
			if err := a.ddl(ctx, "alter", postgres.AddColumnSQL(table, c)); err != nil && !postgres.IsDuplicateColumn(err) {
				a.logger.Warn("Failed to add column", "table", table, "column", c.Name, "error", err)
			}
			current.AddColumn(c)
		}
		return nil, nil
	})
}

func (a *Applier) createTable(ctx context.Context, schema *mapping.TableSchema) error {
	if a.opts.RecreateTables {
		if err := a.DropTable(ctx, schema.TableName); err != nil {
			return err
		}
	}

	a.logger.Info("Creating table", "schema", schema.String())
	err := a.ddl(ctx, "create", postgres.CreateTableSQL(schema))
	if err != nil && !postgres.IsDuplicateTable(err) {
		return fmt.Errorf("create table %s: %w", schema.TableName, err)
	}
	return nil
}

func (a *Applier) ddl(ctx context.Context, statement, query string) error {
	a.logger.Debug("Executing DDL", "sql", query)
	_, err := a.db.ExecContext(ctx, query)
	outcome := metrics.OutcomeApplied
	if err != nil {
		outcome = metrics.OutcomeFailed
		a.logger.Error("DDL failed", "sql", query, "error", err)
	}
	metrics.DDLStatements.WithLabelValues(statement, outcome).Inc()
	return err
}

func (a *Applier) insert(ctx context.Context, table string, r row) (int64, error) {
	query := postgres.InsertSQL(table, r.columns)
	n, err := a.exec(ctx, query, r.values)
	if err != nil {
		if postgres.IsUndefinedTable(err) {
			a.logger.Warn("Table is gone but its schema is still registered; it is not recreated until restart", "table", table)
		}
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	if n != 1 {
		a.logger.Warn("Insert affected unexpected row count", "sql", query, "values", r.values, "rows", n)
	}
	return n, nil
}

// replace deletes the row identified by the key attributes, then inserts doc.
// The delete is best effort: its failure is logged and the insert still runs.
func (a *Applier) replace(ctx context.Context, table string, r row) (int64, error) {
	keys, args, err := a.keyPredicate(r)
	if err != nil {
		a.logger.Warn("Skipping delete half of update", "table", table, "error", err)
	} else if _, err := a.exec(ctx, postgres.DeleteSQL(table, keys), args); err != nil {
		a.logger.Warn("Delete before insert failed", "table", table, "error", err)
	}
	return a.insert(ctx, table, r)
}

func (a *Applier) delete(ctx context.Context, table string, r row) (int64, error) {
	keys, args, err := a.keyPredicate(r)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	query := postgres.DeleteSQL(table, keys)
	n, err := a.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		a.logger.Warn("Delete matched no rows", "sql", query, "values", args)
	}
	return n, nil
}

func (a *Applier) exec(ctx context.Context, query string, args []any) (int64, error) {
	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		a.logger.Error("Statement failed", "sql", query, "values", args, "error", err)
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// keyPredicate returns the key columns and their projected values.
func (a *Applier) keyPredicate(r row) ([]string, []any, error) {
	keys := []string{a.opts.PartitionKey}
	if a.opts.SortKey != "" {
		keys = append(keys, a.opts.SortKey)
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		v, ok := r.value(k)
		if !ok || v == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingKey, k)
		}
		args[i] = v
	}
	return keys, args, nil
}

// row is a document projected onto a table schema.
type row struct {
	columns []mapping.Column
	values  []any
}

func (r row) value(name string) (any, bool) {
	for i, c := range r.columns {
		if c.Name == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// project extracts every schema column present in doc as its declared type.
// Columns absent from doc are left out of the row.
func project(schema *mapping.TableSchema, doc mapping.Document) (row, error) {
	var r row
	for _, c := range schema.Columns() {
		v, ok := doc[c.Name]
		if !ok {
			continue
		}
		val, err := mapping.ColumnValue(v, c.Type)
		if err != nil {
			return row{}, fmt.Errorf("column %s: %w", c.Name, err)
		}
		r.columns = append(r.columns, c)
		r.values = append(r.values, val)
	}
	return r, nil
}
