// Package transcript implements the merge engine that stitches successive
// speech-recognizer fragments into one stable transcript for live display.
//
// Recognizers emit no structural metadata about how a new fragment relates to
// prior output: it may repeat the whole utterance, extend only its tail,
// re-issue earlier text with different trailing punctuation, or start an
// unrelated new utterance. The engine infers the relationship purely from
// text comparison, bounds the transcript's growth, and reports when content
// was dropped.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTrailingPunct is the trailing punctuation stripped before fragments
// are compared. Interim recognizer output often omits terminal punctuation
// that the final output adds; without stripping it, such pairs would be
// misclassified as unrelated content.
const DefaultTrailingPunct = ".,!?;:"

// Outcome reports how a fragment relates to the last line of the transcript.
type Outcome int

const (
	// Duplicate means the fragment is already fully contained in the last
	// line; the transcript is left unchanged.
	Duplicate Outcome = iota
	// Extend means the fragment is a longer version of the last line; the
	// raw fragment replaces it.
	Extend
	// Append means the fragment is unrelated to the last line and starts a
	// new one.
	Append
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Extend:
		return "extend"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Result is the merged transcript. Text never exceeds the character budget
// passed to Combine; Truncated is set when older content had to be dropped
// to keep it that way.
type Result struct {
	Text      string
	Truncated bool
}

// Merger holds the normalization policy used when comparing fragments.
// Normalized forms are used only for classification, never substituted into
// the stored transcript. The zero value compares verbatim text; Default is
// the policy most recognizers need.
type Merger struct {
	// TrailingPunct is the set of punctuation characters stripped from the
	// end of a line before comparison. Empty disables punctuation stripping.
	TrailingPunct string
	// FoldCase lowercases both sides before comparison, for recognizers
	// whose interim and final hypotheses differ in casing.
	FoldCase bool
}

// Default is the comparison policy used by the package-level Combine.
var Default = Merger{TrailingPunct: DefaultTrailingPunct}

// Combine merges addition into base under the Default policy.
func Combine(base, addition string, maxChars int) Result {
	return Default.Combine(base, addition, maxChars)
}

// Combine merges a recognizer fragment into the accumulated transcript.
//
// Only the last line of base is merge-eligible; earlier lines are frozen
// context reattached verbatim. The call is stateless: the caller threads
// Result.Text back in as the next call's base, one chain per dictation
// session. When the candidate exceeds maxChars characters, the front is
// dropped so the most recently spoken content stays visible, and Truncated
// is set. A non-positive maxChars clamps to an empty transcript instead of
// failing mid-session.
func (m Merger) Combine(base, addition string, maxChars int) Result {
	lastLine := lastLineOf(base)

	var candidate string
	switch m.Classify(lastLine, addition) {
	case Duplicate:
		candidate = base
	case Extend:
		candidate = base[:len(base)-len(lastLine)] + addition
	default:
		if lastLine == "" {
			// An empty last line carries no content to separate from.
			candidate = base + addition
		} else {
			candidate = base + "\n" + addition
		}
	}
	return clamp(candidate, maxChars)
}

// Classify reports how addition relates to the last line of the transcript.
// The checks run in order: containment wins over extension, so verbatim
// repeats and punctuation-only re-issues never cause rewrites.
func (m Merger) Classify(lastLine, addition string) Outcome {
	normLast := m.normalize(lastLine)
	normAdd := m.normalize(addition)

	switch {
	case strings.HasPrefix(normLast, normAdd):
		// Covers equality, empty additions and punctuation-only re-issues.
		return Duplicate
	case normLast != "" && strings.HasPrefix(normAdd, normLast):
		return Extend
	default:
		return Append
	}
}

// normalize trims trailing whitespace, then a maximal run of trailing
// punctuation, then optionally folds case.
func (m Merger) normalize(s string) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if m.TrailingPunct != "" {
		s = strings.TrimRight(s, m.TrailingPunct)
	}
	if m.FoldCase {
		s = strings.ToLower(s)
	}
	return s
}

func lastLineOf(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// clamp keeps the trailing maxChars runes of s. Counting runes rather than
// bytes means a multi-byte sequence is never split.
func clamp(s string, maxChars int) Result {
	if maxChars < 0 {
		maxChars = 0
	}
	if utf8.RuneCountInString(s) <= maxChars {
		return Result{Text: s}
	}
	runes := []rune(s)
	return Result{Text: string(runes[len(runes)-maxChars:]), Truncated: true}
}
