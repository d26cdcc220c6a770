package reference

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/bbp-discovery/internal/domain"
)

// DefaultSubprocesses is the built-in SAP Ariba sourcing walk-through, used
// when neither a catalog nor generation yields a list.
var DefaultSubprocesses = []string{
	"Sourcing Request Intake",
	"Sourcing Project Creation",
	"Sourcing Event Setup",
	"Supplier Identification and Invitation",
	"Event Publishing and Bidding",
	"Bid Evaluation and Scoring",
	"Award and Contract Handoff",
}

// Catalog is a YAML file of subprocess lists:
//
//	subprocesses:
//	  - Sourcing Event Setup
//	by_module:
//	  Contracts:
//	    - Contract Authoring
//
// A by_module entry matching the session's module choice wins over the
// default list.
type Catalog struct {
	Default  []string            `yaml:"subprocesses"`
	ByModule map[string][]string `yaml:"by_module"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subprocess catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse subprocess catalog %s: %w", path, err)
	}
	c.Default = cleanList(c.Default)
	for k, v := range c.ByModule {
		c.ByModule[k] = cleanList(v)
	}
	if len(c.Default) == 0 && len(c.ByModule) == 0 {
		return nil, fmt.Errorf("subprocess catalog %s lists no subprocesses", path)
	}
	return &c, nil
}

// Subprocesses returns the list for the session's module.
func (c *Catalog) Subprocesses(_ context.Context, choices domain.UserChoices) ([]string, error) {
	module := strings.TrimSpace(choices[domain.ChoiceModule])
	for k, v := range c.ByModule {
		if strings.EqualFold(k, module) && len(v) > 0 {
			return append([]string(nil), v...), nil
		}
	}
	return append([]string(nil), c.Default...), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
