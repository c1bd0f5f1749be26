package view

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the part of a pgx connection or pool the core needs.
// *pgxpool.Pool, *pgxpool.Conn and *pgx.Conn all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// BuildSelect renders q as a parameterized SELECT. Field names and the target
// are quoted identifiers; values only ever travel as named arguments.
func BuildSelect(q *Query) (string, pgx.NamedArgs) {
	var sb strings.Builder
	args := make(pgx.NamedArgs, len(q.Filters))

	sb.WriteString("SELECT * FROM ")
	sb.WriteString(q.Target.Sanitize())
	sb.WriteString(" WHERE true")

	for _, f := range q.Filters {
		fmt.Fprintf(&sb, " AND %s %s @%s", pgx.Identifier{f.Field}.Sanitize(), f.Operator, f.Param)
		args[f.Param] = f.Value.Arg()
	}

	return sb.String(), args
}

// Execute runs q against db and returns every row as a column name to value map.
func Execute(ctx context.Context, db Querier, q *Query) ([]map[string]any, error) {
	sql, args := BuildSelect(q)

	rows, err := db.Query(ctx, sql, args)
	if err != nil {
		return nil, classify(err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	if records == nil {
		records = []map[string]any{}
	}

	for _, record := range records {
		normalizeRow(record)
	}
	return records, nil
}

// normalizeRow replaces values that do not encode to readable JSON.
func normalizeRow(record map[string]any) {
	for column, value := range record {
		switch v := value.(type) {
		case [16]byte: // uuid columns
			record[column] = uuid.UUID(v).String()
		}
	}
}

// encodeErrorPrefix begins the error pgx returns when an argument has no
// encoding for its parameter's type.
const encodeErrorPrefix = "failed to encode args"

// classify sorts a backend failure into the error taxonomy. Errors reported by
// the server, and arguments pgx could not encode for the statement's parameter
// types, are the caller's to fix; everything else is internal.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return BackendQueryError(err, "Database query error: "+pgErr.Message)
	}
	if strings.Contains(err.Error(), encodeErrorPrefix) {
		return BackendQueryError(err, "Database query error: "+err.Error())
	}
	return InternalError(err)
}
