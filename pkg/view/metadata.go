package view

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const notAvailable = "N/A"

// FieldInfo describes one column of the target.
type FieldInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// Summary describes the target as a whole and the filters applied to it.
type Summary struct {
	Description    string `json:"description"`
	TotalFields    int    `json:"totalFields"`
	DataSource     string `json:"dataSource"`
	FilterCriteria string `json:"filterCriteria"`
}

// Metadata accompanies every successful query result.
type Metadata struct {
	Fields  map[string]FieldInfo `json:"fields"`
	Summary Summary              `json:"summary"`
}

// catalogColumn is one row of columnsSQL.
type catalogColumn struct {
	Schema   string
	Relation string
	Name     string
	DataType string
	Comment  *string
}

// columnsSQL lists the columns of one relation with their formatted types.
// An unqualified name resolves to the first match along the session's search
// path, as it does in the data query.
const columnsSQL = `WITH target AS (
	SELECT c.oid, n.nspname, c.relname
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relname = @name
		AND c.relkind IN ('r', 'v', 'm', 'f', 'p')
		AND CASE WHEN @schema::text = '' THEN n.nspname = ANY (current_schemas(false)) ELSE n.nspname = @schema::text END
	ORDER BY array_position(current_schemas(false), n.nspname) NULLS LAST
	LIMIT 1
)
SELECT
	t.nspname::text,
	t.relname::text,
	a.attname::text,
	format_type(a.atttypid, a.atttypmod),
	col_description(t.oid, a.attnum)
FROM target t
JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid
WHERE a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

// Describe reads the catalog for the columns of target and composes the
// metadata summary. criteria is reported verbatim.
func Describe(ctx context.Context, db Querier, target Target, criteria string) (*Metadata, error) {
	rows, err := db.Query(ctx, columnsSQL, pgx.NamedArgs{
		"name":   target.Name,
		"schema": target.Schema,
	})
	if err != nil {
		return nil, classify(err)
	}

	columns, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalogColumn])
	if err != nil {
		return nil, classify(err)
	}

	md := &Metadata{Fields: make(map[string]FieldInfo, len(columns))}
	for _, col := range columns {
		info := FieldInfo{
			Type:        col.DataType,
			Description: notAvailable,
			Source:      col.Schema + "." + col.Relation,
		}
		if col.Comment != nil && *col.Comment != "" {
			info.Description = *col.Comment
		}
		md.Fields[col.Name] = info
	}

	if criteria == "" {
		criteria = noCriteria
	}
	md.Summary = Summary{
		Description:    fmt.Sprintf("Metadata for view '%s'", target),
		TotalFields:    len(md.Fields),
		DataSource:     target.String(),
		FilterCriteria: criteria,
	}
	return md, nil
}
