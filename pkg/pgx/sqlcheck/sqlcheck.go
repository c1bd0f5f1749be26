// Package sqlcheck renders generated statements the way pgx sends them and
// checks them with the PostgreSQL parser, without a database connection.
package sqlcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// ErrNotSelect is returned for statements other than a single SELECT.
var ErrNotSelect = errors.New("sqlcheck: not a single SELECT statement")

// Statement is a checked statement in positional form.
type Statement struct {
	SQL         string
	Args        []any
	Fingerprint string
}

// Positional rewrites @name placeholders to $n, exactly as pgx does before
// sending a query with named arguments.
func Positional(ctx context.Context, sql string, args pgx.NamedArgs) (string, []any, error) {
	if args == nil {
		args = pgx.NamedArgs{}
	}
	return args.RewriteQuery(ctx, nil, sql, nil)
}

// Check rewrites sql to positional form and parses it. Only one SELECT is
// accepted.
func Check(ctx context.Context, sql string, args pgx.NamedArgs) (*Statement, error) {
	positional, values, err := Positional(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("sqlcheck: rewrite: %w", err)
	}

	tree, err := pg_query.Parse(positional)
	if err != nil {
		return nil, fmt.Errorf("sqlcheck: parse: %w", err)
	}
	stmts := tree.GetStmts()
	if len(stmts) != 1 || stmts[0].GetStmt().GetSelectStmt() == nil {
		return nil, ErrNotSelect
	}

	fp, err := pg_query.Fingerprint(positional)
	if err != nil {
		return nil, fmt.Errorf("sqlcheck: fingerprint: %w", err)
	}
	return &Statement{SQL: positional, Args: values, Fingerprint: fp}, nil
}
