package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/launchlab/integrations/config"
)

// envPrefix prefixes every setting, e.g. INTEGRATIONS_CALL_TIMEOUT.
const envPrefix = "INTEGRATIONS"

// cli holds the state shared by subcommands once the root command ran its
// setup.
type cli struct {
	envFile   string
	providers string
	logFormat string
	debug     bool

	settings *config.Settings
	app      *app
}

func execute(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := newRootCmd(stderr)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(logOutput io.Writer) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "integrations",
		Short: "Call and inspect provider integrations",
		Long: `integrations exposes the provider integration layer on the command line.

Every call goes through the same dispatcher used by agents: arguments are
validated against the method input schema, the backend is invoked once under a
timeout, the payload is checked against the output schema and failures come
back as one normalized error.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd, logOutput)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", "", "path to a .env file (default: ./.env when present)")
	flags.StringVar(&c.providers, "providers", "", "REST/JSON provider definition file (overrides INTEGRATIONS_PROVIDERS_FILE)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: auto, json, text or terminal")
	flags.BoolVar(&c.debug, "debug", false, "enable debug logs")

	root.AddCommand(
		newMethodsCmd(c),
		newCallCmd(c),
		newStatusCmd(c),
		newToolCmd(c),
		newBuildUsageCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, logOutput io.Writer) error {
	settings, err := config.New[config.Settings](envPrefix, c.envFile)
	if err != nil {
		return err
	}
	if c.providers != "" {
		settings.ProvidersFile = c.providers
	}
	if c.logFormat != "" {
		settings.LogFormat = c.logFormat
	}
	settings.Debug = settings.Debug || c.debug
	c.settings = settings

	ctx := logContext(cmd.Context(), logOutput, settings.LogFormat, settings.Debug)
	cmd.SetContext(ctx)
	log.Debug(ctx, log.KV{K: "msg", V: "settings loaded"}, log.KV{K: "providers_file", V: settings.ProvidersFile})

	a, err := newApp(ctx, settings)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func logContext(ctx context.Context, out io.Writer, format string, debug bool) context.Context {
	var f log.FormatFunc
	switch strings.ToLower(format) {
	case "json":
		f = log.FormatJSON
	case "text":
		f = log.FormatText
	case "terminal":
		f = log.FormatTerminal
	default:
		f = log.FormatJSON
		if log.IsTerminal() {
			f = log.FormatTerminal
		}
	}
	ctx = log.Context(ctx, log.WithFormat(f), log.WithOutput(out))
	if debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
