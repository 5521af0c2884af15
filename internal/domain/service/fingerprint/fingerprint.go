// Package fingerprint collapses semantically equivalent issue reports to
// one stable dedup key. Reports differing only in timestamps, reference
// numbers, paths, casing or whitespace fingerprint identically.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tkoike/issuegate/internal/domain/model/report"
)

// DefaultLength is the fingerprint length in hex characters.
const DefaultLength = 16

// placeholder substituted for content that normalized to nothing.
const emptyPlaceholder = "<empty>"

// substitution replaces one class of high-entropy substrings with a fixed
// placeholder. The list is ordered: broader patterns run before the
// narrower ones they contain (timestamps before dates, paths before hex).
type substitution struct {
	pattern     *regexp.Regexp
	placeholder string
}

// The substitution pass runs on already lowercased text, so the patterns
// only need lowercase letter classes.
var substitutions = []substitution{
	{regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), "<uuid>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:z|[+-]\d{2}:?\d{2})?`), "<ts>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "<date>"},
	{regexp.MustCompile(`\d{2}:\d{2}:\d{2}(?:\.\d+)?`), "<time>"},
	{regexp.MustCompile(`#\d+`), "<ref>"},
	{regexp.MustCompile(`(?:/[\w.@+-]+){2,}/?`), "<path>"},
	{regexp.MustCompile(`\b[0-9a-f]{7,64}\b`), "<hex>"},
	{regexp.MustCompile(`\b\d{4,}\b`), "<num>"},
}

// Fingerprinter computes fixed-length dedup keys.
type Fingerprinter struct {
	length int
}

// New creates a fingerprinter producing keys of the given hex length.
// Lengths outside [8, 64] fall back to DefaultLength.
func New(length int) *Fingerprinter {
	if length < 8 || length > sha256.Size*2 {
		length = DefaultLength
	}
	return &Fingerprinter{length: length}
}

// Fingerprint computes the dedup key for a report. It is a pure function
// of the normalized report: identical normalized input always yields an
// identical key, independent of time, randomness or I/O.
func (f *Fingerprinter) Fingerprint(r report.CandidateReport) string {
	parts := []string{
		Normalize(r.Title),
		BodyHash(r.Body),
		strings.Join(r.NormalizedLabels(), ","),
		strings.ToLower(strings.TrimSpace(r.Kind)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])[:f.length]
}

// BodyHash returns the full content hash of a normalized body. The
// registry stores it so an unchanged body can be recognized without
// keeping the body itself.
func BodyHash(body string) string {
	sum := sha256.Sum256([]byte(Normalize(body)))
	return hex.EncodeToString(sum[:])
}

// Normalize rewrites high-entropy substrings to fixed placeholders, then
// NFKC-normalizes, lowercases and collapses whitespace. It is total and
// idempotent: it never fails, and normalizing twice equals normalizing
// once. Input that normalizes to nothing degrades to a generic
// placeholder.
func Normalize(s string) string {
	// Unicode and case folding run first so the substitution pass sees the
	// same text a second pass would see; placeholders are NFKC-stable.
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	for _, sub := range substitutions {
		s = sub.pattern.ReplaceAllString(s, sub.placeholder)
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return emptyPlaceholder
	}
	return s
}

// Describe returns a short diagnostic rendering of the normalized report,
// used by logs.
func Describe(r report.CandidateReport) string {
	return fmt.Sprintf("title=%q kind=%q labels=%d", Normalize(r.Title), strings.ToLower(strings.TrimSpace(r.Kind)), len(r.NormalizedLabels()))
}
