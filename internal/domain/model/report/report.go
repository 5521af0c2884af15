package report

import (
	"sort"
	"strings"
)

// CandidateReport is one automatically generated issue report awaiting a
// create-or-update decision. It is never persisted as-is; only its
// fingerprint and a snapshot of selected fields survive in the registry.
type CandidateReport struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
	Kind   string   `json:"kind"`
}

// NormalizedLabels returns the label set as a sorted, lowercased,
// deduplicated slice. Empty labels are dropped.
func (r CandidateReport) NormalizedLabels() []string {
	seen := make(map[string]bool, len(r.Labels))
	out := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
