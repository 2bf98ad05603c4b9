package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/router"
)

func newToolCmd(c *cli) *cobra.Command {
	var (
		args     argsFlags
		traceID  string
		dryRun   bool
		textOnly bool
	)
	cmd := &cobra.Command{
		Use:   "tool <name> [op]",
		Short: "Send one operation to a tool, as an agent would",
		Long: `tool sends {"op": op, "args": ...} to the named tool. The op defaults to
help, which prints the tool usage document.`,
		Example: `  integrations tool llm complete --args '{"provider":"openai","messages":[{"role":"user","content":"hi"}]}'
  integrations tool billing list_methods`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			r, ok := c.app.tools[pos[0]]
			if !ok {
				return fmt.Errorf("unknown tool %q, available: %s", pos[0], strings.Join(c.app.toolNames(), ", "))
			}
			op := router.OpHelp
			if len(pos) == 2 {
				op = pos[1]
			}
			values, err := args.parse(cmd.InOrStdin())
			if err != nil {
				return err
			}
			resp := r.Handle(cmd.Context(), router.Request{
				Op:      op,
				Args:    values,
				TraceID: traceID,
				DryRun:  dryRun,
				Provenance: &integration.Provenance{
					SourceType: integration.SourceUserDirective,
					SourceRef:  "cli",
				},
			})
			if textOnly && resp.Text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			} else if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.OK {
				return errCallFailed
			}
			return nil
		},
	}
	args.register(cmd)
	cmd.Flags().StringVar(&traceID, "trace-id", "", "trace id (generated when empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "ask backends to validate without side effects")
	cmd.Flags().BoolVar(&textOnly, "text", false, "print only the response text when there is one")
	return cmd
}
