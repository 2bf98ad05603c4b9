package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/launchlab/integrations/runtime/integration"
)

var builtinSummaries = map[string]string{
	OpHelp:          "Describe the available operations.",
	OpStatus:        "Report health and credential state of every integration.",
	OpListProviders: "List the providers behind this tool.",
	OpListMethods:   "List callable methods. Optional args: provider, capability.",
}

func (r *Router) help() *Response {
	return &Response{
		OK:   true,
		Op:   OpHelp,
		Text: r.UsageDoc(),
		Data: map[string]any{"operations": r.Operations()},
	}
}

func (r *Router) status(ctx context.Context) *Response {
	statuses := make(map[string]any, len(r.integrations))
	var b strings.Builder
	fmt.Fprintf(&b, "%s status:\n", r.name)
	for _, in := range r.integrations {
		st := in.Status(ctx)
		statuses[in.Name()] = st
		avail := "available"
		if !st.Available {
			avail = "unavailable"
		}
		fmt.Fprintf(&b, "- %s: %s, auth %s", in.Name(), avail, st.Auth)
		if st.Detail != "" {
			fmt.Fprintf(&b, " (%s)", st.Detail)
		}
		b.WriteString("\n")
	}
	return &Response{OK: true, Op: OpStatus, Text: b.String(), Data: map[string]any{"integrations": statuses}}
}

func (r *Router) listProviders() *Response {
	providers := make(map[string][]string)
	for _, in := range r.integrations {
		for _, p := range in.Registry().Providers() {
			providers[p] = append(providers[p], in.Name())
		}
	}
	list := make([]map[string]any, 0, len(providers))
	var b strings.Builder
	for _, p := range sortedKeys(providers) {
		list = append(list, map[string]any{"provider": p, "integrations": providers[p]})
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return &Response{OK: true, Op: OpListProviders, Text: b.String(), Data: map[string]any{"providers": list}}
}

func (r *Router) listMethods(args map[string]any) *Response {
	provider, _ := args["provider"].(string)
	capability, _ := args["capability"].(string)
	var (
		list []map[string]any
		b    strings.Builder
	)
	for _, in := range r.integrations {
		for _, s := range in.Registry().Specs() {
			if provider != "" && s.Provider != provider {
				continue
			}
			if capability != "" && !s.HasCapability(capability) {
				continue
			}
			entry := map[string]any{
				"method_id":    s.ID.String(),
				"provider":     s.Provider,
				"integration":  in.Name(),
				"description":  s.Description,
				"idempotency":  string(s.Idempotency),
				"capabilities": append([]string(nil), s.Capabilities...),
				"deprecated":   s.Deprecated,
			}
			fmt.Fprintf(&b, "- %s: %s", s.ID, s.Description)
			if s.Deprecated {
				entry["replacement_method_id"] = s.ReplacementID.String()
				fmt.Fprintf(&b, " (deprecated, use %s)", s.ReplacementID)
			}
			b.WriteString("\n")
			list = append(list, entry)
		}
	}
	return &Response{OK: true, Op: OpListMethods, Text: b.String(), Data: map[string]any{"methods": list}}
}

// Usage returns the usage document of every operation keyed by operation
// name.
func (r *Router) Usage() map[string]string {
	out := make(map[string]string, len(r.ops)+4)
	for _, name := range r.Operations() {
		out[name] = r.operationUsage(name)
	}
	return out
}

// UsageDoc renders the usage document of the whole tool, as returned by help.
func (r *Router) UsageDoc() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.name)
	if r.description != "" {
		b.WriteString(r.description)
		b.WriteString("\n\n")
	}
	b.WriteString("Call with {\"op\": <operation>, \"args\": {...}}.\n\n## Operations\n\n")
	for _, name := range r.Operations() {
		b.WriteString(r.operationUsage(name))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Router) operationUsage(name string) string {
	if s, ok := builtinSummaries[name]; ok {
		return fmt.Sprintf("### %s\n\n%s\n", name, s)
	}
	op := r.ops[name]
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", name)
	if op.Summary != "" {
		b.WriteString(op.Summary)
		b.WriteString("\n")
	}
	if op.Usage != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(op.Usage))
		b.WriteString("\n")
	}
	b.WriteString("\nMethods:\n")
	for _, id := range op.Methods {
		line := "- " + id.String()
		if in, ok := r.byMethod[id]; ok {
			if s, ok := in.Registry().Resolve(id.String()); ok {
				line += fmt.Sprintf(" (%s)", s.Idempotency)
				if s.Deprecated {
					line += fmt.Sprintf(", deprecated, use %s", s.ReplacementID)
				}
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Integrations returns the integrations behind the router.
func (r *Router) Integrations() []*integration.Integration {
	return append([]*integration.Integration(nil), r.integrations...)
}
