package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/retry"
)

// errCallFailed makes the process exit non-zero after a failed result was
// printed.
var errCallFailed = errors.New("call failed")

func newCallCmd(c *cli) *cobra.Command {
	var (
		args       argsFlags
		timeout    time.Duration
		retries    int
		backoff    time.Duration
		dryRun     bool
		cursor     string
		traceID    string
		sourceType string
		sourceRef  string
	)
	cmd := &cobra.Command{
		Use:   "call <method-id>",
		Short: "Dispatch one call and print its result",
		Example: `  integrations call anthropic.messages.create.v1 \
    --args '{"messages":[{"role":"user","content":"hello"}]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			values, err := args.parse(cmd.InOrStdin())
			if err != nil {
				return err
			}
			call := integration.Call{
				TraceID:   traceID,
				MethodID:  pos[0],
				Args:      values,
				TimeoutMS: int(timeout / time.Millisecond),
				Cursor:    cursor,
				DryRun:    dryRun,
			}
			if retries > 0 {
				call.RetryPolicy = &integration.RetryPolicy{MaxRetries: retries, BackoffMS: int(backoff / time.Millisecond)}
			}
			if sourceType != "" || sourceRef != "" {
				call.Provenance = &integration.Provenance{SourceType: integration.SourceType(sourceType), SourceRef: sourceRef}
			}

			var res *integration.Result
			if in, ok := c.app.lookup(call.MethodID); ok {
				out := retry.Do(cmd.Context(), in, call, c.app.retryOptions()...)
				res = out.Result
				if out.Attempts > 1 {
					c.app.logger.Info(cmd.Context(), "call retried", "method_id", call.MethodID, "attempts", out.Attempts, "exhausted", out.Exhausted)
				}
			} else {
				if call.TraceID == "" {
					call.TraceID = uuid.NewString()
				}
				res = &integration.Result{
					TraceID:  call.TraceID,
					MethodID: call.MethodID,
					Error:    callerrors.Newf(callerrors.ValidationFailed, "unknown method_id %q", call.MethodID).WithHint("run `integrations methods` to list methods"),
				}
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.OK {
				return errCallFailed
			}
			return nil
		},
	}
	args.register(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "call timeout (default: INTEGRATIONS_CALL_TIMEOUT)")
	cmd.Flags().IntVar(&retries, "retries", 0, "retries on retriable failures of retry-safe methods")
	cmd.Flags().DurationVar(&backoff, "backoff", time.Second, "initial delay between retries")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "ask the backend to validate without side effects")
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "trace id (generated when empty)")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "provenance source type, e.g. user_directive")
	cmd.Flags().StringVar(&sourceRef, "source-ref", "", "provenance source reference")
	return cmd
}

// argsFlags reads a JSON argument object from --args or --args-file.
type argsFlags struct {
	inline string
	file   string
}

func (f *argsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.inline, "args", "", "JSON object of arguments")
	cmd.Flags().StringVar(&f.file, "args-file", "", "file holding the JSON arguments, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("args", "args-file")
}

func (f *argsFlags) parse(stdin io.Reader) (map[string]any, error) {
	var raw []byte
	switch {
	case f.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read arguments: %w", err)
		}
		raw = b
	case f.file != "":
		b, err := os.ReadFile(f.file)
		if err != nil {
			return nil, fmt.Errorf("read arguments: %w", err)
		}
		raw = b
	default:
		raw = []byte(f.inline)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
