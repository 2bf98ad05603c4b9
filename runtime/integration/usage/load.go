package usage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyFile is the YAML document holding consumer policies:
//
//	consumers:
//	  - name: growth_strategist
//	    allow: [ads_insights, crm_lookup]
//	    block: [payments]
type PolicyFile struct {
	Consumers []Policy `yaml:"consumers"`
}

// ParsePolicies decodes consumer policies from YAML. Unknown keys and
// consumers without a name are rejected.
func ParsePolicies(r io.Reader) ([]Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f PolicyFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("usage: decode policies: %w", err)
	}
	seen := make(map[string]bool, len(f.Consumers))
	for i, c := range f.Consumers {
		if c.Consumer == "" {
			return nil, fmt.Errorf("usage: consumer #%d has no name", i+1)
		}
		if err := checkConsumerName(c.Consumer); err != nil {
			return nil, err
		}
		if seen[c.Consumer] {
			return nil, fmt.Errorf("usage: duplicate consumer %q", c.Consumer)
		}
		seen[c.Consumer] = true
	}
	return f.Consumers, nil
}

// LoadPolicies reads consumer policies from a YAML file.
func LoadPolicies(path string) ([]Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("usage: open policies: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParsePolicies(f)
}

// LoadDocs reads every <tool>.md file of dir into a map keyed by tool name.
func LoadDocs(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("usage: read docs: %w", err)
	}
	docs := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("usage: read %s: %w", e.Name(), err)
		}
		docs[strings.TrimSuffix(e.Name(), ".md")] = string(b)
	}
	return docs, nil
}
