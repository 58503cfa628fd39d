package deontic

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ruleSetFile is the on-disk YAML shape of a rule set.
type ruleSetFile struct {
	Name     string        `yaml:"name"`
	Formulas []formulaFile `yaml:"formulas"`
}

type formulaFile struct {
	ID          string   `yaml:"id"`
	Operator    string   `yaml:"operator"`
	Agent       string   `yaml:"agent"`
	Proposition string   `yaml:"proposition"`
	Confidence  *float64 `yaml:"confidence"`
	Source      string   `yaml:"source"`
}

// LoadRuleSet reads a YAML rule set. Formulas without an explicit id get a
// content-derived one; a missing confidence defaults to 1.0.
func LoadRuleSet(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rule set: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet decodes a YAML rule set from memory.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var raw ruleSetFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rule set: %w", err)
	}

	rs := RuleSet{Name: strings.TrimSpace(raw.Name)}
	if rs.Name == "" {
		rs.Name = "ruleset"
	}

	seen := make(map[string]int, len(raw.Formulas))
	for i, ff := range raw.Formulas {
		op, err := ParseOperator(ff.Operator)
		if err != nil {
			return RuleSet{}, fmt.Errorf("formula %d: %w", i+1, err)
		}
		confidence := 1.0
		if ff.Confidence != nil {
			confidence = *ff.Confidence
		}

		f := Formula{
			ID:          strings.TrimSpace(ff.ID),
			Operator:    op,
			Agent:       strings.TrimSpace(ff.Agent),
			Proposition: strings.TrimSpace(ff.Proposition),
			Confidence:  confidence,
			SourceText:  ff.Source,
		}
		if f.ID == "" {
			f.ID = StableID(f)
		}
		if prev, dup := seen[f.ID]; dup {
			return RuleSet{}, fmt.Errorf("formula %d: duplicate id %q (first used by formula %d)", i+1, f.ID, prev)
		}
		seen[f.ID] = i + 1
		rs.Formulas = append(rs.Formulas, f)
	}

	return rs, nil
}
