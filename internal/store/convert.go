package store

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/smartshare/hunter/internal/model"
)

func rowFromFile(f model.File) fileRow {
	return fileRow{
		Workspace:           f.Workspace,
		SHA256:              f.SHA256,
		Size:                f.Size,
		Bytes:               f.Bytes,
		MimeHint:            f.MimeHint,
		MatchedRuleIdx:      f.MatchedRule.Index,
		MatchedRulePriority: f.MatchedRule.Priority,
		MatchedRuleSet:      f.MatchedRule.Category,
		Category:            f.Category,
		Verdict:             int(f.Verdict),
		Comment:             f.Comment,
	}
}

func fileFromRow(r fileRow) model.File {
	return model.File{
		Workspace: r.Workspace,
		SHA256:    r.SHA256,
		Size:      r.Size,
		Bytes:     r.Bytes,
		MimeHint:  r.MimeHint,
		MatchedRule: model.RuleRef{
			Index:    r.MatchedRuleIdx,
			Priority: r.MatchedRulePriority,
			Category: r.MatchedRuleSet,
		},
		Category: r.Category,
		Verdict:  model.Verdict(r.Verdict),
		Comment:  r.Comment,
	}
}

func pathFromRow(r pathRow) model.Path {
	return model.Path{
		Workspace: r.Workspace,
		Host: model.Host{
			Protocol: model.Protocol(r.HostProtocol),
			Address:  r.HostAddress,
			Port:     r.HostPort,
			Share:    r.HostShare,
		},
		FullPath:     r.FullPath,
		ArchiveChain: splitChain(r.ArchiveChain),
		FileSHA256:   r.FileSHA256,
		ObservedAt:   r.ObservedAt,
	}
}

func joinChain(chain []string) string { return strings.Join(chain, "\x1f") }

func splitChain(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}

func encodeRuleSnapshot(rules []model.RuleSnapshot) (string, error) {
	raw, err := json.Marshal(rules)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// sortReviewRows applies the deterministic review ordering (§5): highest
// matched-rule priority first, then category, then first observed path.
// Priority is the rule's computed priority value (model.RuleRef.Priority),
// not its Index — Index is only the original descriptor position, used by
// rule.Compile for tie-breaking and otherwise unrelated to priority order.
func sortReviewRows(rows []ReviewRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Priority != rows[j].Priority {
			return rows[i].Priority > rows[j].Priority
		}
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return firstPath(rows[i]) < firstPath(rows[j])
	})
}
