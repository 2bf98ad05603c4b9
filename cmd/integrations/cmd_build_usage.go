package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/launchlab/integrations/runtime/integration/usage"
)

func newBuildUsageCmd(c *cli) *cobra.Command {
	var (
		policies string
		out      string
		docsDir  string
	)
	cmd := &cobra.Command{
		Use:   "build-usage",
		Short: "Validate consumer tool policies and write the usage artifact",
		Long: `build-usage checks every consumer policy against the configured tools and
writes one usage file per consumer. It fails, listing every problem, when a
policy names an unknown tool or both allows and blocks one, when a tool has no
usage document or when a document matches no tool.

Usage documents come from each tool's help output. Files named <tool>.md in
--docs override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pols, err := usage.LoadPolicies(policies)
			if err != nil {
				return err
			}
			tools := c.app.toolNames()
			docs := make(map[string]string, len(tools))
			for _, name := range tools {
				docs[name] = c.app.tools[name].UsageDoc()
			}
			if docsDir != "" {
				extra, err := usage.LoadDocs(docsDir)
				if err != nil {
					return err
				}
				for name, doc := range extra {
					docs[name] = doc
				}
			}

			artifact, err := usage.Build(tools, docs, pols)
			if err != nil {
				var be *usage.BuildError
				if errors.As(err, &be) {
					for _, p := range be.Problems {
						fmt.Fprintln(cmd.ErrOrStderr(), p.String())
					}
				}
				return err
			}
			if err := artifact.Write(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote usage for %d consumers to %s\n", len(pols), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&policies, "policies", "", "YAML file of consumer tool policies")
	cmd.Flags().StringVar(&out, "out", "", "output directory")
	cmd.Flags().StringVar(&docsDir, "docs", "", "directory of <tool>.md usage documents")
	_ = cmd.MarkFlagRequired("policies")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
