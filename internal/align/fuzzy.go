// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package align

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

const (
	// defaultMinRatio is the similarity a fuzzy window must reach to be
	// accepted as an alignment.
	defaultMinRatio = 0.85

	// minAnchorLen is the shortest token worth using as a scan anchor.
	minAnchorLen = 4
)

// windowScales are the window lengths tried at each candidate start,
// relative to the snippet length. The widest window tolerates insertions
// in the document text; the narrowest keeps a near-verbatim match from
// being penalized for trailing bytes it never claimed.
var windowScales = [...]float64{0.9, 1.0, 1.2}

func (a Aligner) minRatio() float64 {
	if a.MinFuzzyRatio > 0 {
		return a.MinFuzzyRatio
	}
	return defaultMinRatio
}

// fuzzyAlign slides windows proportional to the snippet length (see
// windowScales) across the chunk and scores each candidate against the
// snippet by Levenshtein similarity. The best-scoring window is accepted
// when it meets the threshold (R2.4). Candidates are visited in increasing
// start order and a window must strictly beat the running best, so among
// equal top scores the earliest window wins deterministically.
//
// Candidate windows are anchored at occurrences of the snippet's longest
// token; when the token appears nowhere, windows are sampled at a fixed
// stride across the whole chunk.
func (a Aligner) fuzzyAlign(snippet, text string) *types.CharInterval {
	snipRunes := lowerRunes(snippet)
	if len(snipRunes) == 0 {
		return nil
	}

	textRunes, offsets := lowerRunesWithOffsets(text)
	if len(textRunes) == 0 {
		return nil
	}

	windows := make([]int, 0, len(windowScales))
	for _, scale := range windowScales {
		w := int(float64(len(snipRunes)) * scale)
		if w < 1 {
			w = 1
		}
		if len(windows) == 0 || windows[len(windows)-1] != w {
			windows = append(windows, w)
		}
	}

	candidates := anchorPositions(snipRunes, textRunes)
	if len(candidates) == 0 {
		stride := len(snipRunes) / 10
		if stride < 1 {
			stride = 1
		}
		for pos := 0; pos < len(textRunes); pos += stride {
			candidates = append(candidates, pos)
		}
	}

	snip := string(snipRunes)
	best := 0.0
	var bestIv *types.CharInterval
	for _, cand := range candidates {
		for _, window := range windows {
			end := cand + window
			if end > len(textRunes) {
				end = len(textRunes)
			}
			if end <= cand {
				continue
			}

			ratio := similarity(snip, string(textRunes[cand:end]))
			if ratio > best {
				best = ratio
				bestIv = &types.CharInterval{Start: offsets[cand], End: offsets[end]}
			}
		}
	}

	if best < a.minRatio() {
		return nil
	}
	return bestIv
}

// similarity is 1 - d/maxLen where d is the Levenshtein distance in runes.
// Identical strings score 1.0; completely different strings approach 0.
func similarity(a, b string) float64 {
	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(maxLen)
}

// anchorPositions returns the rune positions in text of every occurrence of
// the snippet's longest whitespace-delimited token, provided that token is
// long enough to be a useful anchor.
func anchorPositions(snippet, text []rune) []int {
	longest := longestToken(snippet)
	if len(longest) < minAnchorLen {
		return nil
	}

	var positions []int
	from := 0
	for {
		pos := runeIndex(text, longest, from)
		if pos < 0 {
			break
		}
		positions = append(positions, pos)
		from = pos + len(longest)
	}
	return positions
}

// longestToken returns the longest run of non-space runes in s.
func longestToken(s []rune) []rune {
	var longest []rune
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && !unicode.IsSpace(s[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > len(longest) {
			longest = s[start:i]
		}
		start = -1
	}
	return longest
}

// runeIndex is a naive rune-slice substring scan starting at from.
func runeIndex(haystack, needle []rune, from int) int {
	if len(needle) == 0 || from < 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lowerRunes(s string) []rune {
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// lowerRunesWithOffsets lowercases s rune by rune and records each rune's
// byte offset in the original string. The offsets slice has one extra
// entry holding len(s), so offsets[i:j] bounds are always addressable.
func lowerRunesWithOffsets(s string) ([]rune, []int) {
	runes := make([]rune, 0, len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		runes = append(runes, unicode.ToLower(r))
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))
	return runes, offsets
}
