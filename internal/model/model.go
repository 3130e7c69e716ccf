// Package model defines the domain types shared by the rule compiler,
// dedup store and analyzer: workspaces, hosts, files, paths and reviews.
package model

import (
	"strconv"
	"time"
)

// Relevance is the operator-assigned importance of a rule's findings.
type Relevance int

// Relevance levels, low to high.
const (
	RelevanceLow Relevance = iota + 1
	RelevanceMedium
	RelevanceHigh
)

// Rank returns the 1/2/3 ranking used by the priority formula.
func (r Relevance) Rank() int { return int(r) }

// String implements fmt.Stringer.
func (r Relevance) String() string {
	switch r {
	case RelevanceLow:
		return "low"
	case RelevanceMedium:
		return "medium"
	case RelevanceHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Accuracy is the operator-assigned confidence a rule's match is a true positive.
type Accuracy int

// Accuracy levels, low to high.
const (
	AccuracyLow Accuracy = iota + 1
	AccuracyMedium
	AccuracyHigh
)

// Rank returns the 1/2/3 ranking used by the priority formula.
func (a Accuracy) Rank() int { return int(a) }

// String implements fmt.Stringer.
func (a Accuracy) String() string {
	switch a {
	case AccuracyLow:
		return "low"
	case AccuracyMedium:
		return "medium"
	case AccuracyHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Verdict is a reviewer's disposition for a File.
type Verdict int

// Verdict values. VerdictNone means not yet reviewed.
const (
	VerdictNone Verdict = iota
	VerdictRelevant
	VerdictIrrelevant
)

// Workspace is a named container scoping all collection state.
type Workspace struct {
	Name      string
	CreatedAt time.Time
}

// Protocol identifies the transport an enumeration driver speaks.
type Protocol string

// Supported protocols.
const (
	ProtocolFTP   Protocol = "ftp"
	ProtocolNFS   Protocol = "nfs"
	ProtocolSMB   Protocol = "smb"
	ProtocolLocal Protocol = "local"
)

// Host is a protocol endpoint within a workspace.
type Host struct {
	Workspace string
	Protocol  Protocol
	Address   string
	Port      int
	Share     string // share/export name, empty for local
	Completed bool
}

// Key returns the (protocol, address, port, share) identity of the host.
func (h Host) Key() string {
	return string(h.Protocol) + "://" + h.Address + ":" + strconv.Itoa(h.Port) + "/" + h.Share
}

// RuleRef identifies the rule that matched a File or Path, pinned to the
// run's rule snapshot rather than the live (mutable) config.
type RuleRef struct {
	Index    int // original config descriptor position; tie-break only, not a priority
	Priority int // the rule's computed priority (§5 formula), used for review ordering
	Category string
}

// File is keyed by the SHA-256 of its raw bytes within a workspace.
type File struct {
	Workspace   string
	SHA256      string // lowercase hex
	Size        int64
	Bytes       []byte // nil if size-gated out
	MimeHint    string
	MatchedRule RuleRef
	Category    string
	Verdict     Verdict
	Comment     string
}

// HasContent reports whether bytes were retained for this File.
func (f File) HasContent() bool { return f.Bytes != nil }

// Path is a location a File was observed at.
type Path struct {
	Workspace    string
	Host         Host
	FullPath     string
	ArchiveChain []string // empty if observed directly
	FileSHA256   string
	MatchedRule  RuleRef
	ObservedAt   time.Time
}

// Review is a File's verdict plus its comment history.
type Review struct {
	FileSHA256 string
	Verdict    Verdict
	Comments   []ReviewComment
}

// ReviewComment is one entry in a Review's history.
type ReviewComment struct {
	Text string
	At   time.Time
}

// RuleSnapshot is the persisted, immutable record of a rule as used by a
// specific collection run (the match_rule table in §6).
type RuleSnapshot struct {
	Index         int
	SearchLoc     string
	SearchPattern string
	Category      string
	Relevance     Relevance
	Accuracy      Accuracy
	Priority      int
}
