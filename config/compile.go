package config

import (
	"fmt"
	"strings"

	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/serialization"
)

// Rule is a compiled label rule.
type Rule struct {
	Selector classmap.Selector
	Labels   []string
}

// Compiled is a configuration checked and ready to use.
type Compiled struct {
	Rules          []Rule
	Denylist       *serialization.Denylist
	MaxValueLength int
}

// Compile validates every pattern of the configuration.
func (c *Config) Compile() (*Compiled, error) {
	compiled := &Compiled{MaxValueLength: c.MaxValueLength}

	for i, p := range c.Packages {
		path := strings.TrimSuffix(p.Path, "/")
		if path == "" {
			return nil, fmt.Errorf("packages[%d]: path is required", i)
		}

		for _, pattern := range []string{path, path + "/*"} {
			sel, err := classmap.CompileSelector(pattern, "", "")
			if err != nil {
				return nil, fmt.Errorf("packages[%d]: %w: %w", i, ErrInvalidSelector, err)
			}

			compiled.Rules = append(compiled.Rules, Rule{Selector: sel, Labels: p.Labels})
		}
	}

	for i, l := range c.Labels {
		if len(l.Labels) == 0 {
			return nil, fmt.Errorf("labels[%d]: labels are required", i)
		}

		sel, err := classmap.CompileSelector(l.Package, l.Class, l.Method)
		if err != nil {
			return nil, fmt.Errorf("labels[%d]: %w: %w", i, ErrInvalidSelector, err)
		}

		compiled.Rules = append(compiled.Rules, Rule{Selector: sel, Labels: l.Labels})
	}

	patterns := c.Redaction.Patterns
	if !c.Redaction.ReplaceDefaults {
		patterns = append(append([]string{}, serialization.DefaultSensitiveNames...),
			patterns...)
	}

	denylist, err := serialization.NewDenylist(patterns)
	if err != nil {
		return nil, fmt.Errorf("redaction.patterns: %w", err)
	}

	compiled.Denylist = denylist

	return compiled, nil
}

// Configure makes s redact and truncate as configured.
func (c *Compiled) Configure(s *serialization.Serializer) {
	s.WithDenylist(c.Denylist)

	if c.MaxValueLength > 0 {
		s.WithMaxValueLength(c.MaxValueLength)
	}
}

// ApplyLabels labels the functions of b and returns how many labels were
// applied.
func (c *Compiled) ApplyLabels(b *classmap.Builder) int {
	n := 0
	for _, r := range c.Rules {
		n += b.ApplyLabels(r.Selector, r.Labels...)
	}

	return n
}
