// Package analyzer implements the eight-step decision procedure of §4.4:
// size gate, fetch, dedup check, archive dispatch, content/full-path/
// file-name passes, no-match. Exactly one rule is recorded per (File, Path)
// observation.
//
// Archive members are never analyzed by a recursive call: Analyze returns
// them to its caller for re-posting onto the work queue instead, per §9
// "avoid recursive function calls across archive boundaries... this keeps
// stack depth constant and lets the pool balance across archive and
// non-archive work."
package analyzer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/smartshare/hunter/internal/archive"
	"github.com/smartshare/hunter/internal/fserrors"
	"github.com/smartshare/hunter/internal/logging"
	"github.com/smartshare/hunter/internal/model"
	"github.com/smartshare/hunter/internal/rule"
	"github.com/smartshare/hunter/internal/store"
)

// ArchiveChainDelimiter joins archive_chain entries into the observable
// path string that full_path rules are applied to (§4.4 step 6).
const ArchiveChainDelimiter = "::"

// DefaultMaxArchiveDepth bounds archive recursion to guard against zip
// bombs (§4.3 "Maximum nesting depth is configurable (default 8)").
const DefaultMaxArchiveDepth = 8

// ByteFetcher streams a file reference's bytes into memory. Drivers supply
// it as a closure so the analyzer decides whether to invoke it before any
// transfer happens (§4.5).
type ByteFetcher func(ctx context.Context) ([]byte, error)

// FileRef is one candidate observation submitted to the analyzer: a host,
// a full path, the chain of archive containers it was reached through, its
// size, a deferred byte fetcher, and the archive nesting depth it was
// reached at (0 for anything a driver enumerates directly).
type FileRef struct {
	Host         model.Host
	FullPath     string
	ArchiveChain []string
	Size         int64
	Depth        int
	Fetch        ByteFetcher
}

// Thresholds are the size-gate limits and archive allow-list from the rule
// configuration file (§6).
type Thresholds struct {
	MaxFileSizeBytes    int64
	MaxArchiveSizeBytes int64
	SupportedArchives   []string
	MaxArchiveDepth     int
}

// Analyzer runs the decision procedure against a compiled rule set and a
// dedup store.
type Analyzer struct {
	Workspace  string
	Rules      *rule.Set
	Store      store.Store
	Thresholds Thresholds
}

// New constructs an Analyzer. MaxArchiveDepth defaults to
// DefaultMaxArchiveDepth when zero.
func New(workspace string, rules *rule.Set, st store.Store, th Thresholds) *Analyzer {
	if th.MaxArchiveDepth == 0 {
		th.MaxArchiveDepth = DefaultMaxArchiveDepth
	}
	return &Analyzer{Workspace: workspace, Rules: rules, Store: st, Thresholds: th}
}

func extensionOf(fullPath string) string {
	ext := path.Ext(fullPath)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// sniffHeaderSize bounds how many leading bytes resolveArchive reads for
// magic-byte sniffing (§4.3 fallback); every registered format's signature
// fits well within it.
const sniffHeaderSize = 512

// isArchiveExtension reports whether fullPath's literal extension names a
// supported archive format, with no byte access (§4.4 step 1's size gate
// runs before anything is fetched, so only the extension is available).
func (a *Analyzer) isArchiveExtension(fullPath string) bool {
	ext := extensionOf(fullPath)
	if ext == "" {
		return false
	}
	_, ok := archive.ForExtension(ext, a.Thresholds.SupportedArchives)
	return ok
}

// resolveArchive implements §4.3's "checked by extension first, then by
// sniffing magic bytes as a fallback" container detection. raw is nil
// before fetch (step 1), in which case only the extension check applies;
// once raw is available (step 4), a mismatched or absent extension falls
// back to sniffing the file's leading bytes.
func (a *Analyzer) resolveArchive(fullPath string, raw []byte) (archive.Factory, bool) {
	if ext := extensionOf(fullPath); ext != "" {
		if f, ok := archive.ForExtension(ext, a.Thresholds.SupportedArchives); ok {
			return f, true
		}
	}
	if raw == nil {
		return nil, false
	}
	header := raw
	if len(header) > sniffHeaderSize {
		header = header[:sniffHeaderSize]
	}
	return archive.Sniff(header, a.Thresholds.SupportedArchives)
}

func (a *Analyzer) observablePath(ref FileRef) string {
	if len(ref.ArchiveChain) == 0 {
		return ref.FullPath
	}
	return strings.Join(ref.ArchiveChain, ArchiveChainDelimiter) + ArchiveChainDelimiter + ref.FullPath
}

// Analyze runs the eight-step decision procedure for ref. Its second return
// value is the set of archive members discovered in step 4, if any; the
// caller (the coordinator's worker loop) is responsible for re-posting them
// to the work queue as new, independent Analyze calls.
func (a *Analyzer) Analyze(ctx context.Context, ref FileRef) ([]FileRef, error) {
	log := logging.WithFile(string(ref.Host.Protocol)+"://"+ref.Host.Address, ref.FullPath, ref.ArchiveChain)

	isArchive := a.isArchiveExtension(ref.FullPath)

	// Step 1: size gate.
	gateLimit := a.Thresholds.MaxFileSizeBytes
	if isArchive {
		gateLimit = a.Thresholds.MaxArchiveSizeBytes
	}
	if gateLimit != 0 && ref.Size > gateLimit {
		return nil, a.recordGated(ctx, ref)
	}

	// Step 2: fetch + hash.
	raw, err := ref.Fetch(ctx)
	if err != nil {
		return nil, fserrors.Retriable(fmt.Errorf("analyzer: fetch %s: %w", ref.FullPath, err))
	}
	sum := sha256.Sum256(raw)
	sha := hex.EncodeToString(sum[:])

	// Step 3: dedup check.
	existing, err := a.Store.Lookup(ctx, a.Workspace, sha)
	if err == nil {
		return nil, a.Store.AddPath(ctx, model.Path{
			Workspace:    a.Workspace,
			Host:         ref.Host,
			FullPath:     ref.FullPath,
			ArchiveChain: ref.ArchiveChain,
			FileSHA256:   sha,
			MatchedRule:  existing.MatchedRule,
		})
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	// Step 4: archive dispatch. Bytes are available now, so a miss on the
	// extension check falls back to sniffing raw's header (§4.3).
	if factory, ok := a.resolveArchive(ref.FullPath, raw); ok {
		var pending []FileRef
		if ref.Depth >= a.Thresholds.MaxArchiveDepth {
			log.Warn("archive nesting exceeds max depth, skipping container")
		} else if members, err := a.archiveMembers(ctx, ref, factory, raw); err != nil {
			log.WithError(err).Warn("archive extraction failed, skipping container")
		} else {
			pending = members
		}
		// The container itself still participates in name/path matching
		// below (§4.4 step 4 policy note); it never gets a content pass.
		return pending, a.matchNameAndPath(ctx, ref, sha, raw)
	}

	// Step 5: content pass.
	if m, ok := rule.Apply(a.Rules.ContentView(), raw); ok {
		return nil, a.record(ctx, ref, sha, raw, m.Rule)
	}

	// Steps 6-7: full-path then file-name passes.
	return nil, a.matchNameAndPath(ctx, ref, sha, raw)
}

// matchNameAndPath runs steps 6-7 (and, for archive containers, doubles as
// the "name/path rules still apply" fallback after step 4). Step 8 is the
// implicit fall-through when neither view matches.
func (a *Analyzer) matchNameAndPath(ctx context.Context, ref FileRef, sha string, raw []byte) error {
	observable := a.observablePath(ref)
	if m, ok := rule.ApplyString(a.Rules.FullPathView(), observable); ok {
		return a.record(ctx, ref, sha, raw, m.Rule)
	}
	if m, ok := rule.ApplyString(a.Rules.FileNameView(), path.Base(ref.FullPath)); ok {
		return a.record(ctx, ref, sha, raw, m.Rule)
	}
	return nil // step 8: no match, discard
}

// recordGated handles step 1's gated-out branch: no fetch, only full_path
// and file_name rules apply, and any match is content-less.
func (a *Analyzer) recordGated(ctx context.Context, ref FileRef) error {
	observable := a.observablePath(ref)
	var matched *rule.Rule
	if m, ok := rule.ApplyString(a.Rules.FullPathView(), observable); ok {
		matched = m.Rule
	} else if m, ok := rule.ApplyString(a.Rules.FileNameView(), path.Base(ref.FullPath)); ok {
		matched = m.Rule
	} else {
		return nil
	}
	// A gated file has no bytes, so it has no stable content identity; the
	// path string itself stands in as the dedup key for this content-less
	// observation, avoiding a spurious cross-file collision on sha256("").
	sha := gatedKey(ref)
	f, err := a.Store.UpsertFile(ctx, model.File{
		Workspace:   a.Workspace,
		SHA256:      sha,
		Size:        ref.Size,
		MatchedRule: model.RuleRef{Index: matched.Index, Priority: matched.Priority, Category: matched.Category},
		Category:    matched.Category,
	})
	if err != nil {
		return err
	}
	return a.Store.AddPath(ctx, model.Path{
		Workspace:    a.Workspace,
		Host:         ref.Host,
		FullPath:     ref.FullPath,
		ArchiveChain: ref.ArchiveChain,
		FileSHA256:   f.SHA256,
		MatchedRule:  f.MatchedRule,
	})
}

func gatedKey(ref FileRef) string {
	sum := sha256.Sum256([]byte("gated\x00" + ref.Host.Key() + "\x00" + strings.Join(ref.ArchiveChain, ArchiveChainDelimiter) + "\x00" + ref.FullPath))
	return hex.EncodeToString(sum[:])
}

func (a *Analyzer) record(ctx context.Context, ref FileRef, sha string, raw []byte, matched *rule.Rule) error {
	mimeHint := ""
	if len(raw) > 0 {
		mimeHint = mimetype.Detect(raw).String()
	}
	f, err := a.Store.UpsertFile(ctx, model.File{
		Workspace:   a.Workspace,
		SHA256:      sha,
		Size:        int64(len(raw)),
		Bytes:       raw,
		MimeHint:    mimeHint,
		MatchedRule: model.RuleRef{Index: matched.Index, Priority: matched.Priority, Category: matched.Category},
		Category:    matched.Category,
	})
	if err != nil {
		return err
	}
	return a.Store.AddPath(ctx, model.Path{
		Workspace:    a.Workspace,
		Host:         ref.Host,
		FullPath:     ref.FullPath,
		ArchiveChain: ref.ArchiveChain,
		FileSHA256:   f.SHA256,
		MatchedRule:  f.MatchedRule,
	})
}

// archiveMembers opens ref's bytes with factory (already resolved by
// resolveArchive, by extension or by sniffing) and returns one FileRef per
// member, depth-incremented and archive_chain-extended, for the caller to
// re-post to the work queue. It does not analyze anything itself.
func (a *Analyzer) archiveMembers(ctx context.Context, ref FileRef, factory archive.Factory, containerBytes []byte) ([]FileRef, error) {
	src := bytes.NewReader(containerBytes)
	ex := factory()
	members, errc := ex.Extract(ctx, src, int64(len(containerBytes)))
	chain := append(append([]string{}, ref.ArchiveChain...), ref.FullPath)

	var pending []FileRef
	for member := range members {
		member := member
		pending = append(pending, FileRef{
			Host:         ref.Host,
			FullPath:     member.Path,
			ArchiveChain: chain,
			Size:         member.Size,
			Depth:        ref.Depth + 1,
			Fetch: func(ctx context.Context) ([]byte, error) {
				rc, err := member.Open()
				if err != nil {
					return nil, err
				}
				defer rc.Close()
				return io.ReadAll(rc)
			},
		})
	}
	return pending, <-errc
}
