package extract

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/memkeep/memkeep/internal/models"
)

// Pattern is one compiled surface pattern. Group 1 captures the extracted
// text; for decision patterns, group 2 (when present) captures the
// rationale clause introduced by "because" or "since".
type Pattern struct {
	Kind models.Kind
	Re   *regexp.Regexp
}

// patternFile is the YAML shape for overriding the built-in pattern list.
type patternFile struct {
	Patterns []struct {
		Kind  string `yaml:"kind"`
		Regex string `yaml:"regex"`
	} `yaml:"patterns"`
}

// DefaultPatterns returns the built-in ordered pattern list. Order matters:
// the first pattern matching a sentence wins, so decision phrasing is
// checked before the looser convention phrasings.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Kind: models.KindDecision,
			Re:   regexp.MustCompile(`(?i)\bwe (?:decided|chose|agreed|opted) to\s+(.+?)(?:\s+(?:because|since)\s+(.+))?$`),
		},
		{
			Kind: models.KindDecision,
			Re:   regexp.MustCompile(`(?i)\bthe decision (?:is|was) to\s+(.+?)(?:\s+(?:because|since)\s+(.+))?$`),
		},
		{
			Kind: models.KindConvention,
			Re:   regexp.MustCompile(`(?i)\bwe always\s+(.+)$`),
		},
		{
			Kind: models.KindConvention,
			Re:   regexp.MustCompile(`(?i)\bwe never\s+(.+)$`),
		},
		{
			Kind: models.KindConvention,
			Re:   regexp.MustCompile(`(?i)\bthe convention is to\s+(.+)$`),
		},
	}
}

// LoadPatterns reads an ordered pattern list from a YAML file. An empty
// path returns the built-in defaults.
func LoadPatterns(path string) ([]Pattern, error) {
	if path == "" {
		return DefaultPatterns(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse patterns file: %w", err)
	}
	if len(pf.Patterns) == 0 {
		return nil, fmt.Errorf("patterns file %s defines no patterns", path)
	}
	patterns := make([]Pattern, 0, len(pf.Patterns))
	for i, p := range pf.Patterns {
		kind := models.Kind(p.Kind)
		if kind != models.KindDecision && kind != models.KindConvention {
			return nil, fmt.Errorf("pattern %d: kind must be decision or convention, got %q", i, p.Kind)
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		patterns = append(patterns, Pattern{Kind: kind, Re: re})
	}
	return patterns, nil
}
