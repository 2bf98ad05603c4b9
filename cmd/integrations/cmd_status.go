package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/launchlab/integrations/runtime/integration"
)

type statusEntry struct {
	Integration string `json:"integration"`
	Methods     int    `json:"methods"`
	integration.Status
}

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show availability and credential state of each integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := make([]statusEntry, 0, len(c.app.integrations))
			for _, in := range c.app.integrations {
				entries = append(entries, statusEntry{
					Integration: in.Name(),
					Methods:     in.Registry().Len(),
					Status:      in.Status(cmd.Context()),
				})
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INTEGRATION\tAVAILABLE\tAUTH\tMETHODS\tDETAIL")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%s\n", e.Integration, e.Available, e.Auth, e.Methods, e.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
