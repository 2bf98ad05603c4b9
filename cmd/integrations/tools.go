package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/launchlab/integrations/runtime/integration"
	"github.com/launchlab/integrations/runtime/integration/callerrors"
	"github.com/launchlab/integrations/runtime/integration/method"
	"github.com/launchlab/integrations/runtime/integration/router"
)

const (
	llmTool        = "llm"
	llmDescription = "Generates text with a hosted language model."
	opComplete     = "complete"
)

const completeUsage = `Arguments:
- provider: optional, one of the configured providers. Defaults to the first
  provider with credentials.
- messages: required, list of {"role": "user"|"assistant", "content": "..."}.
- system, model, max_tokens, temperature: optional.`

// completeOperation routes "complete" to the chat method of the provider
// named by args.provider.
func (a *app) completeOperation(ctx context.Context) router.Operation {
	byProvider := make(map[string]method.Ident, len(a.llms))
	var (
		ids       []method.Ident
		names     []string
		preferred string
	)
	for _, in := range a.llms {
		specs := in.Registry().Filter("generate")
		if len(specs) == 0 {
			continue
		}
		id := specs[len(specs)-1].ID
		byProvider[in.Name()] = id
		ids = append(ids, id)
		names = append(names, in.Name())
		if preferred == "" && in.Status(ctx).Auth != integration.AuthMissing {
			preferred = in.Name()
		}
	}
	if preferred == "" && len(names) > 0 {
		preferred = names[0]
	}
	sort.Strings(names)

	return router.Operation{
		Name:    opComplete,
		Summary: "Generate a reply to a conversation.",
		Usage:   completeUsage,
		Methods: ids,
		Plan: func(req router.Request) ([]integration.Call, error) {
			args := make(map[string]any, len(req.Args))
			for k, v := range req.Args {
				args[k] = v
			}
			name, _ := args["provider"].(string)
			delete(args, "provider")
			if name == "" {
				name = preferred
			}
			id, ok := byProvider[name]
			if !ok {
				return nil, callerrors.Newf(callerrors.ValidationFailed, "unknown provider %q", name).
					WithHint("use one of: " + strings.Join(names, ", "))
			}
			return []integration.Call{{MethodID: id.String(), Args: args}}, nil
		},
	}
}

// restOperations exposes the latest non-deprecated version of each method
// family as an operation named resource_action.
func restOperations(reg *method.Registry) []router.Operation {
	seen := make(map[string]bool)
	var ops []router.Operation
	for _, id := range reg.IDs() {
		family := id.Family()
		if seen[family] {
			continue
		}
		seen[family] = true
		s := latest(reg.Versions(family))
		ops = append(ops, router.Operation{
			Name:    id.Resource() + "_" + id.Action(),
			Summary: s.Description,
			Usage:   fmt.Sprintf("Arguments (JSON Schema):\n\n%s", s.Input.JSON()),
			Methods: []method.Ident{s.ID},
		})
	}
	return ops
}

// latest returns the highest non-deprecated version, or the highest version
// when every version is deprecated. versions is sorted ascending.
func latest(versions []*method.Spec) *method.Spec {
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].Deprecated {
			return versions[i]
		}
	}
	return versions[len(versions)-1]
}
