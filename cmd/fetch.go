package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	app "github.com/okian/routedata/internal/app"
	"github.com/okian/routedata/internal/domain/query"
	"github.com/okian/routedata/pkg/logger"
)

type fetchFlags struct {
	page         int
	limit        int
	apiVersion   string
	memberID     string
	memberStatus string
	selector     string
	pretty       bool
}

func newFetchCmd(c *cli) *cobra.Command {
	f := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch ROUTE [SLUG]",
		Short: "Fetch the data of a configured route and print it as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := query.PathOptions{}
			if len(args) == 2 {
				path.Slug = args[1]
			}
			if cmd.Flags().Changed("page") {
				path.Page = query.Int(f.page)
			}
			if cmd.Flags().Changed("limit") {
				path.Limit = query.Int(f.limit)
			}
			locals := query.Locals{APIVersion: f.apiVersion}
			if f.memberID != "" {
				locals.Member = &query.Member{ID: f.memberID, Status: f.memberStatus}
			}

			svc := app.New(app.WithConfig(c.cfg), app.WithLogger(logger.Named("service")))
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Stop()

			result, err := svc.Fetch(cmd.Context(), args[0], path, locals)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result, f.selector, f.pretty)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&f.page, "page", 1, "page number")
	flags.IntVar(&f.limit, "limit", 0, "page size")
	flags.StringVar(&f.apiVersion, "api-version", "", "content API version (defaults to api_version)")
	flags.StringVar(&f.memberID, "member-id", "", "fetch as this member")
	flags.StringVar(&f.memberStatus, "member-status", "free", "status of the member: free or paid")
	flags.StringVar(&f.selector, "select", "", "JSONPath applied to the result, e.g. $.posts[*].slug")
	flags.BoolVar(&f.pretty, "pretty", false, "indent the output")
	return cmd
}

// printResult writes result as JSON. With a selector only the matches are
// written, one array of values.
func printResult(w io.Writer, result query.Result, selector string, pretty bool) error {
	var out any = result
	if selector != "" {
		x, err := jp.ParseString(selector)
		if err != nil {
			return fmt.Errorf("invalid selector %q: %w", selector, err)
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		// Typed backend values become plain maps and slices for the path walk.
		doc, err := oj.ParseString(string(raw))
		if err != nil {
			return err
		}
		out = x.Get(doc)
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
