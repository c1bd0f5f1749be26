package pgview

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/edgeflare/pgview/pkg/pgx/sqlcheck"
	"github.com/edgeflare/pgview/pkg/view"
	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile [request-json]",
	Short: "Print the statement a request compiles to",
	Long: `Compiles a query request body without contacting the database and prints the
statement in the positional form pgx sends it, its arguments and its fingerprint.
The body is read from stdin when no argument is given.`,
	Example: `  pgview compile '{"view_name": "v_customers", "age__gte": 30}'
  echo '{"view_name": "sales.orders"}' | pgview compile`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().String("target-key", "", "request body key naming the view")
	compileCmd.Flags().Bool("json", false, "print the result as JSON")
}

type compiled struct {
	SQL         string `json:"sql"`
	Args        []any  `json:"args"`
	Criteria    string `json:"criteria"`
	Fingerprint string `json:"fingerprint"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	var body io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		body = strings.NewReader(args[0])
	}

	req, err := view.DecodeRequest(body, cfg.Query.TargetKey)
	if err != nil {
		return err
	}
	q, err := view.Compile(req.Target, req.Filters)
	if err != nil {
		return err
	}

	sql, named := view.BuildSelect(q)
	stmt, err := sqlcheck.Check(cmd.Context(), sql, named)
	if err != nil {
		return err
	}

	// pgx numbers parameters in order of first use, which is filter order
	out := compiled{
		SQL:         stmt.SQL,
		Args:        make([]any, len(q.Filters)),
		Criteria:    q.Criteria(),
		Fingerprint: stmt.Fingerprint,
	}
	for i, f := range q.Filters {
		out.Args[i] = f.Value
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "sql:\t%s\n", out.SQL)
	for i, f := range q.Filters {
		fmt.Fprintf(tw, "$%d:\t%s (%s)\n", i+1, f.Value.Text(), f.Value.Kind())
	}
	fmt.Fprintf(tw, "criteria:\t%s\n", out.Criteria)
	fmt.Fprintf(tw, "fingerprint:\t%s\n", out.Fingerprint)
	return tw.Flush()
}
