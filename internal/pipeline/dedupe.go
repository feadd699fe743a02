// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"strings"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

// Dedupe collapses extractions that repeat the same (class, text) pair,
// as happens when chunk overlap makes adjacent chunks both report a span
// near the boundary (prd003-extraction R6.1). Text comparison ignores
// case and whitespace runs. Within a duplicate group:
//
//   - a member with no interval merges into the first kept survivor
//   - a member with an interval replaces an interval-less survivor
//   - overlapping intervals keep the one starting earlier in the document
//   - disjoint intervals are distinct mentions and all survive
//
// Attributes follow first-wins: the kept extraction's attributes stand.
// The input slice is not modified; order of survivors follows first
// appearance. Dedupe is idempotent.
func Dedupe(exts []types.Extraction) []types.Extraction {
	if len(exts) == 0 {
		return exts
	}

	out := make([]types.Extraction, 0, len(exts))
	groups := make(map[string][]int)

	for _, ext := range exts {
		key := ext.Class + "\x00" + normalizeText(ext.Text)
		if merged := mergeIntoGroup(out, groups[key], ext); merged {
			continue
		}
		out = append(out, ext)
		groups[key] = append(groups[key], len(out)-1)
	}
	return out
}

// mergeIntoGroup folds ext into an existing survivor when it duplicates
// one, reporting whether it was absorbed.
func mergeIntoGroup(out []types.Extraction, survivors []int, ext types.Extraction) bool {
	if len(survivors) == 0 {
		return false
	}
	if ext.Interval == nil {
		// Unanchored repeat of something already kept.
		return true
	}
	for _, idx := range survivors {
		cur := &out[idx]
		if cur.Interval == nil {
			*cur = ext
			return true
		}
		if cur.Interval.Overlaps(*ext.Interval) {
			if ext.Interval.Start < cur.Interval.Start {
				*cur = ext
			}
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
