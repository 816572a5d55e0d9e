// Package bytediff computes structural diffs between hex bytecode strings,
// at character or whole-byte granularity.
package bytediff

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Granularity selects the diff alignment unit.
type Granularity string

const (
	// GranularityChar diffs the raw hex string character by character.
	GranularityChar Granularity = "char"
	// GranularityByte diffs 2-character tokens, one token per byte.
	GranularityByte Granularity = "byte"
)

// Segment is one run of the diff output. At most one of Added/Removed is
// set; neither means the run is common to both inputs.
type Segment struct {
	Text    string `json:"text"`
	Added   bool   `json:"added,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// Result is a whole-input partition into unchanged/added/removed runs, in
// original order. Counts are characters for both granularities.
type Result struct {
	Segments     []Segment `json:"segments"`
	AddedChars   int       `json:"addedCount"`
	RemovedChars int       `json:"removedCount"`
	HasChanges   bool      `json:"hasChanges"`
}

// Diff computes the difference between two hex strings. Byte granularity
// changes the alignment unit, not the algorithm: both inputs are segmented
// into 2-character tokens and the same LCS-style diff runs over the token
// sequences.
func Diff(a, b string, granularity Granularity) (*Result, error) {
	dmp := diffmatchpatch.New()

	var diffs []diffmatchpatch.Diff
	switch granularity {
	case GranularityChar:
		diffs = dmp.DiffMain(a, b, false)
	case GranularityByte:
		packedA, packedB, tokens := packTokens(a, b)
		diffs = unpackTokens(dmp.DiffMain(packedA, packedB, false), tokens)
	default:
		return nil, fmt.Errorf("unknown granularity %q", granularity)
	}

	result := &Result{}
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		seg := Segment{Text: d.Text}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			seg.Added = true
			result.AddedChars += len(d.Text)
		case diffmatchpatch.DiffDelete:
			seg.Removed = true
			result.RemovedChars += len(d.Text)
		}
		result.Segments = append(result.Segments, seg)
	}
	result.HasChanges = result.AddedChars+result.RemovedChars > 0

	return result, nil
}

// packTokens maps each distinct 2-character token of both inputs to a
// private rune so the character diff aligns on byte boundaries. Same
// technique diffmatchpatch uses internally for line mode.
func packTokens(a, b string) (string, string, map[rune]string) {
	index := make(map[string]rune)
	tokens := make(map[rune]string)
	next := rune(1)

	pack := func(s string) string {
		packed := make([]rune, 0, (len(s)+1)/2)
		for i := 0; i < len(s); i += 2 {
			end := i + 2
			if end > len(s) {
				end = len(s) // odd-length input keeps its trailing nibble
			}
			token := s[i:end]
			r, ok := index[token]
			if !ok {
				r = next
				next++
				index[token] = r
				tokens[r] = token
			}
			packed = append(packed, r)
		}
		return string(packed)
	}

	return pack(a), pack(b), tokens
}

func unpackTokens(diffs []diffmatchpatch.Diff, tokens map[rune]string) []diffmatchpatch.Diff {
	out := make([]diffmatchpatch.Diff, 0, len(diffs))
	for _, d := range diffs {
		text := ""
		for _, r := range d.Text {
			text += tokens[r]
		}
		out = append(out, diffmatchpatch.Diff{Type: d.Type, Text: text})
	}
	return out
}
