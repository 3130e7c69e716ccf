package rule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/smartshare/hunter/internal/model"
)

// ErrMalformedRule is returned at load time when a descriptor's regex fails
// to compile or an attribute is unrecognized (§4.1).
var ErrMalformedRule = errors.New("malformed rule")

// Set is a compiled, priority-sorted immutable rule vector plus the three
// filtered views over it.
type Set struct {
	all         []*Rule
	byContent   []*Rule
	byFullPath  []*Rule
	byFileName  []*Rule
}

// Compile validates and compiles descriptors into a priority-sorted Set.
// Ties in priority are broken deterministically by original descriptor
// index (ascending), which together with the priority formula's strict
// ordering gives the matcher a total order with no observable ties.
func Compile(descriptors []Descriptor) (*Set, error) {
	rules := make([]*Rule, 0, len(descriptors))
	for i, d := range descriptors {
		loc, err := ParseSearchLocation(d.SearchLocation)
		if err != nil {
			return nil, err
		}
		if d.Relevance < model.RelevanceLow || d.Relevance > model.RelevanceHigh {
			return nil, fmt.Errorf("%w: rule %d has unknown relevance %d", ErrMalformedRule, i, d.Relevance)
		}
		if d.Accuracy < model.AccuracyLow || d.Accuracy > model.AccuracyHigh {
			return nil, fmt.Errorf("%w: rule %d has unknown accuracy %d", ErrMalformedRule, i, d.Accuracy)
		}
		pattern, err := regexp.Compile("(?i)" + d.SearchPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d pattern %q: %v", ErrMalformedRule, i, d.SearchPattern, err)
		}
		r := &Rule{
			Index:      i,
			Location:   loc,
			Pattern:    pattern,
			RawPattern: d.SearchPattern,
			Category:   d.Category,
			Relevance:  d.Relevance,
			Accuracy:   d.Accuracy,
		}
		r.Priority = priority(loc, d.Relevance.Rank(), d.Accuracy.Rank(), len(d.SearchPattern))
		rules = append(rules, r)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].Index < rules[j].Index
	})

	s := &Set{all: rules}
	for _, r := range rules {
		switch r.Location {
		case SearchFileContent:
			s.byContent = append(s.byContent, r)
		case SearchFullPath:
			s.byFullPath = append(s.byFullPath, r)
		case SearchFileName:
			s.byFileName = append(s.byFileName, r)
		}
	}
	return s, nil
}

// All returns every compiled rule in priority order.
func (s *Set) All() []*Rule { return s.all }

// ContentView returns the file_content rules in priority order.
func (s *Set) ContentView() []*Rule { return s.byContent }

// FullPathView returns the full_path rules in priority order.
func (s *Set) FullPathView() []*Rule { return s.byFullPath }

// FileNameView returns the file_name rules in priority order.
func (s *Set) FileNameView() []*Rule { return s.byFileName }
