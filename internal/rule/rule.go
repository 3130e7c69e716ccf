// Package rule compiles match_rule descriptors into a priority-sorted,
// immutable rule vector and applies them in first-match-wins order.
//
// The three SearchLocation values are modeled as a closed sum type so the
// per-location views are compile-time partitions of the same underlying
// slice rather than a string compared at match time.
package rule

import (
	"fmt"
	"regexp"

	"github.com/smartshare/hunter/internal/model"
)

// SearchLocation is the closed set of subjects a rule's pattern is applied to.
type SearchLocation int

// The three search locations. Order here is irrelevant; priority.go fixes
// the relative ordering via locationWeight.
const (
	SearchFileName SearchLocation = iota
	SearchFullPath
	SearchFileContent
)

// String implements fmt.Stringer.
func (l SearchLocation) String() string {
	switch l {
	case SearchFileName:
		return "file_name"
	case SearchFullPath:
		return "full_path"
	case SearchFileContent:
		return "file_content"
	default:
		return "unknown"
	}
}

// ParseSearchLocation converts a config string to a SearchLocation.
func ParseSearchLocation(s string) (SearchLocation, error) {
	switch s {
	case "file_name":
		return SearchFileName, nil
	case "full_path":
		return SearchFullPath, nil
	case "file_content":
		return SearchFileContent, nil
	default:
		return 0, fmt.Errorf("%w: unknown search_location %q", ErrMalformedRule, s)
	}
}

// Descriptor is the raw, unvalidated rule as loaded from configuration.
type Descriptor struct {
	SearchLocation string
	SearchPattern  string
	Category       string
	Relevance      model.Relevance
	Accuracy       model.Accuracy
}

// Rule is one compiled, priority-ranked matching rule.
type Rule struct {
	Index         int // original descriptor position, used for tie-breaking
	Location      SearchLocation
	Pattern       *regexp.Regexp
	RawPattern    string
	Category      string
	Relevance     model.Relevance
	Accuracy      model.Accuracy
	Priority      int
}

// Snapshot returns the persisted row for this rule (§3 match_rule table).
func (r *Rule) Snapshot() model.RuleSnapshot {
	return model.RuleSnapshot{
		Index:         r.Index,
		SearchLoc:     r.Location.String(),
		SearchPattern: r.RawPattern,
		Category:      r.Category,
		Relevance:     r.Relevance,
		Accuracy:      r.Accuracy,
		Priority:      r.Priority,
	}
}
