package config

import (
	"fmt"
	"os"

	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/rule"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk shape of the rule configuration described in §6:
// three top-level groups (thresholds, supported archive extensions, match
// rules).
type RuleFile struct {
	MaxFileSizeBytes    int64             `yaml:"max_file_size_bytes"`
	MaxArchiveSizeBytes int64             `yaml:"max_archive_size_bytes"`
	SupportedArchives   []string          `yaml:"supported_archives"`
	MatchRules          []RuleFileEntry   `yaml:"match_rules"`
}

// RuleFileEntry is one match_rules list entry.
type RuleFileEntry struct {
	SearchLocation string `yaml:"search_location"`
	SearchPattern  string `yaml:"search_pattern"`
	Category       string `yaml:"category"`
	Relevance      string `yaml:"relevance"`
	Accuracy       string `yaml:"accuracy"`
}

// LoadRuleFile reads and parses path, validates thresholds, and compiles
// the rule set. It is the entry point every driver subcommand of the CLI
// uses to load configuration (§6); the db subcommand does not load it.
func LoadRuleFile(path string) (*RuleFile, *rule.Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", rule.ErrMalformedRule, err)
	}
	if rf.MaxFileSizeBytes < 0 || rf.MaxArchiveSizeBytes < 0 {
		return nil, nil, fserrors.ErrBadThreshold
	}

	descriptors := make([]rule.Descriptor, 0, len(rf.MatchRules))
	for i, e := range rf.MatchRules {
		relevance, err := parseRelevance(e.Relevance)
		if err != nil {
			return nil, nil, fmt.Errorf("match_rules[%d]: %w", i, err)
		}
		accuracy, err := parseAccuracy(e.Accuracy)
		if err != nil {
			return nil, nil, fmt.Errorf("match_rules[%d]: %w", i, err)
		}
		descriptors = append(descriptors, rule.Descriptor{
			SearchLocation: e.SearchLocation,
			SearchPattern:  e.SearchPattern,
			Category:       e.Category,
			Relevance:      relevance,
			Accuracy:       accuracy,
		})
	}

	set, err := rule.Compile(descriptors)
	if err != nil {
		return nil, nil, err
	}
	return &rf, set, nil
}

func parseRelevance(s string) (model.Relevance, error) {
	switch s {
	case "low":
		return model.RelevanceLow, nil
	case "medium":
		return model.RelevanceMedium, nil
	case "high":
		return model.RelevanceHigh, nil
	default:
		return 0, fmt.Errorf("%w: unknown relevance %q", rule.ErrMalformedRule, s)
	}
}

func parseAccuracy(s string) (model.Accuracy, error) {
	switch s {
	case "low":
		return model.AccuracyLow, nil
	case "medium":
		return model.AccuracyMedium, nil
	case "high":
		return model.AccuracyHigh, nil
	default:
		return 0, fmt.Errorf("%w: unknown accuracy %q", rule.ErrMalformedRule, s)
	}
}
