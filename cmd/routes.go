package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	app "github.com/okian/routedata/internal/app"
)

func newRoutesCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List configured routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			routes := app.New(app.WithConfig(c.cfg)).Routes()
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(map[string]any{"routes": routes})
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFILTER\tORDER\tLIMIT\tDATA")
			for _, r := range routes {
				limit := "-"
				if r.Limit != nil {
					limit = fmt.Sprint(*r.Limit)
				}
				keys := make([]string, 0, len(r.Data))
				for k := range r.Data {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, dash(r.Filter), dash(r.Order), limit, dash(strings.Join(keys, ",")))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
