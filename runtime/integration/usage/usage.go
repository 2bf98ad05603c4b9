// Package usage implements the build-time validation that links tools, their
// usage documents and per-consumer allow and block lists. Build is a pure
// function: it either returns a complete artifact or every problem found,
// never a partial artifact.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Problem kinds reported by Build.
const (
	// ConflictingLists means a tool is both allowed and blocked for a consumer.
	ConflictingLists = "conflicting_lists"
	// MissingUsage means a tool has no usage document.
	MissingUsage = "missing_usage"
	// UnknownTool means a policy references a tool that does not exist.
	UnknownTool = "unknown_tool"
	// OrphanUsage means a usage document exists for no known tool.
	OrphanUsage = "orphan_usage"
)

type (
	// Policy is the allow and block list of one consumer. An empty Allow list
	// grants every known tool not in Block.
	Policy struct {
		Consumer string   `yaml:"name" json:"name"`
		Allow    []string `yaml:"allow" json:"allow,omitempty"`
		Block    []string `yaml:"block" json:"block,omitempty"`
	}

	// Problem is one build failure.
	Problem struct {
		Kind     string `json:"kind"`
		Consumer string `json:"consumer,omitempty"`
		Tool     string `json:"tool"`
	}

	// BuildError lists every problem that prevented the build.
	BuildError struct {
		Problems []Problem
	}

	// Artifact is the validated build output: for each consumer, the tools it
	// may use with their usage documents.
	Artifact struct {
		Consumers []ConsumerTools `json:"consumers"`
	}

	// ConsumerTools is the resolved tool set of one consumer.
	ConsumerTools struct {
		Consumer string      `json:"consumer"`
		Tools    []ToolUsage `json:"tools"`
	}

	// ToolUsage pairs a tool with its usage document.
	ToolUsage struct {
		Tool  string `json:"tool"`
		Usage string `json:"usage"`
	}
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("usage build failed with %d problem(s): %s", len(e.Problems), strings.Join(parts, "; "))
}

// Has reports whether e contains a problem of kind for tool.
func (e *BuildError) Has(kind, tool string) bool {
	for _, p := range e.Problems {
		if p.Kind == kind && p.Tool == tool {
			return true
		}
	}
	return false
}

// String renders the problem for humans.
func (p Problem) String() string {
	switch p.Kind {
	case ConflictingLists:
		return fmt.Sprintf("tool %q is both allowed and blocked for consumer %q", p.Tool, p.Consumer)
	case MissingUsage:
		return fmt.Sprintf("tool %q has no usage document", p.Tool)
	case UnknownTool:
		return fmt.Sprintf("consumer %q references unknown tool %q", p.Consumer, p.Tool)
	case OrphanUsage:
		return fmt.Sprintf("usage document %q matches no tool", p.Tool)
	default:
		return fmt.Sprintf("%s: %s", p.Kind, p.Tool)
	}
}

// Build validates tools, their usage documents and consumer policies, and
// resolves each consumer's tool set.
func Build(tools []string, docs map[string]string, policies []Policy) (*Artifact, error) {
	var problems []Problem
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t] = true
	}
	for _, t := range sortedKeys(known) {
		if strings.TrimSpace(docs[t]) == "" {
			problems = append(problems, Problem{Kind: MissingUsage, Tool: t})
		}
	}
	for _, t := range sortedKeys(docs) {
		if !known[t] {
			problems = append(problems, Problem{Kind: OrphanUsage, Tool: t})
		}
	}

	art := &Artifact{}
	for _, p := range policies {
		allow := toSet(p.Allow)
		block := toSet(p.Block)
		for _, t := range sortedKeys(allow) {
			if block[t] {
				problems = append(problems, Problem{Kind: ConflictingLists, Consumer: p.Consumer, Tool: t})
			}
		}
		for _, t := range sortedKeys(union(allow, block)) {
			if !known[t] {
				problems = append(problems, Problem{Kind: UnknownTool, Consumer: p.Consumer, Tool: t})
			}
		}
		granted := allow
		if len(allow) == 0 {
			granted = known
		}
		ct := ConsumerTools{Consumer: p.Consumer, Tools: []ToolUsage{}}
		for _, t := range sortedKeys(granted) {
			if block[t] || !known[t] {
				continue
			}
			ct.Tools = append(ct.Tools, ToolUsage{Tool: t, Usage: docs[t]})
		}
		art.Consumers = append(art.Consumers, ct)
	}
	if len(problems) > 0 {
		return nil, &BuildError{Problems: problems}
	}
	sort.Slice(art.Consumers, func(i, j int) bool { return art.Consumers[i].Consumer < art.Consumers[j].Consumer })
	return art, nil
}

// Tools returns the tool set of consumer.
func (a *Artifact) Tools(consumer string) ([]ToolUsage, bool) {
	for _, c := range a.Consumers {
		if c.Consumer == consumer {
			return c.Tools, true
		}
	}
	return nil, false
}

// Write renders one JSON document per consumer into dir, named
// <consumer>.tools.json. Documents are staged next to dir and moved into
// place only once all of them are encoded and written.
func (a *Artifact) Write(dir string) error {
	for _, c := range a.Consumers {
		if err := checkConsumerName(c.Consumer); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("usage: create %s: %w", dir, err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(filepath.Clean(dir)), ".tools-*")
	if err != nil {
		return fmt.Errorf("usage: stage artifact: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	names := make([]string, 0, len(a.Consumers))
	for _, c := range a.Consumers {
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("usage: encode %s: %w", c.Consumer, err)
		}
		name := c.Consumer + ".tools.json"
		if err := os.WriteFile(filepath.Join(staging, name), append(b, '\n'), 0o644); err != nil {
			return fmt.Errorf("usage: write %s: %w", name, err)
		}
		names = append(names, name)
	}
	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("usage: write %s: %w", filepath.Join(dir, name), err)
		}
	}
	return nil
}

// checkConsumerName rejects names that cannot be used as a plain file name.
func checkConsumerName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("usage: invalid consumer name %q", name)
	}
	return nil
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
