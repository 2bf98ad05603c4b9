package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/launchlab/integrations/runtime/integration/method"
)

type methodEntry struct {
	ID           string   `json:"id"`
	Integration  string   `json:"integration"`
	Description  string   `json:"description,omitempty"`
	Idempotency  string   `json:"idempotency"`
	Capabilities []string `json:"capabilities,omitempty"`
	Deprecated   bool     `json:"deprecated,omitempty"`
	Replacement  string   `json:"replacement,omitempty"`
}

func newMethodsCmd(c *cli) *cobra.Command {
	var (
		provider   string
		capability string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List registered methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []methodEntry
			for _, in := range c.app.integrations {
				specs := in.Registry().Specs()
				if capability != "" {
					specs = in.Registry().Filter(capability)
				}
				for _, s := range specs {
					if provider != "" && s.Provider != provider {
						continue
					}
					entries = append(entries, newMethodEntry(in.Name(), s))
				}
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tIDEMPOTENCY\tCAPABILITIES\tDESCRIPTION")
			for _, e := range entries {
				desc := e.Description
				if e.Deprecated {
					desc = fmt.Sprintf("[deprecated, use %s] %s", e.Replacement, desc)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Idempotency, strings.Join(e.Capabilities, ","), desc)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "only list methods of this provider")
	cmd.Flags().StringVar(&capability, "capability", "", "only list methods tagged with this capability")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMethodEntry(integration string, s *method.Spec) methodEntry {
	return methodEntry{
		ID:           s.ID.String(),
		Integration:  integration,
		Description:  s.Description,
		Idempotency:  string(s.Idempotency),
		Capabilities: s.Capabilities,
		Deprecated:   s.Deprecated,
		Replacement:  s.ReplacementID.String(),
	}
}
