package rule

// Match is the outcome of a successful Apply: the highest-priority rule in
// the view whose pattern matched, and the byte span of the match.
type Match struct {
	Rule *Rule
	Span [2]int
}

// Apply iterates view in priority order and returns on the first rule whose
// pattern matches subject. Regex evaluation is always case-insensitive
// (compiled in with the (?i) flag) and subject is treated as raw bytes, so
// file_content matching never implicitly decodes to text.
func Apply(view []*Rule, subject []byte) (Match, bool) {
	for _, r := range view {
		if loc := r.Pattern.FindIndex(subject); loc != nil {
			return Match{Rule: r, Span: [2]int{loc[0], loc[1]}}, true
		}
	}
	return Match{}, false
}

// ApplyString is a convenience wrapper for name/path subjects, which are
// always valid UTF-8 strings rather than arbitrary binary content.
func ApplyString(view []*Rule, subject string) (Match, bool) {
	return Apply(view, []byte(subject))
}
