// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package align locates a model-reported snippet inside the chunk text it
// was extracted from. The model only ever sees a chunk and may paraphrase
// whitespace or casing, so location proceeds through tiers of decreasing
// confidence: exact substring, normalized substring, flexible-whitespace
// pattern, then fuzzy window scan. The first tier that succeeds wins.
// Implements: prd002-alignment (R1-R4);
//
//	docs/ARCHITECTURE § Alignment.
package align

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

// Aligner locates snippets within chunk text. The zero value is ready to
// use with the default fuzzy threshold.
type Aligner struct {
	// MinFuzzyRatio is the minimum similarity score the fuzzy tier accepts.
	// Zero selects the default (0.85).
	MinFuzzyRatio float64
}

// Align returns the chunk-local interval of snippet within text, or nil
// when no tier can locate it. A nil result is a normal outcome ("unaligned
// extraction"), never an error (R4.4). Intervals are byte offsets into
// text.
func (a Aligner) Align(snippet, text string) *types.CharInterval {
	snip := clean(snippet)
	if strings.TrimSpace(snip) == "" || text == "" {
		return nil
	}

	if iv := exactAlign(snip, text); iv != nil {
		return iv
	}
	if iv := normalizedAlign(snip, text); iv != nil {
		return iv
	}
	if iv := flexAlign(snip, text); iv != nil {
		return iv
	}
	return a.fuzzyAlign(snip, text)
}

// clean prepares a snippet for matching: NFC normalization plus removal of
// zero-width characters the model sometimes echoes back.
func clean(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		return r
	}, s)
}

// exactAlign finds the first case-sensitive occurrence of snippet (R2.1).
func exactAlign(snippet, text string) *types.CharInterval {
	pos := strings.Index(text, snippet)
	if pos < 0 {
		return nil
	}
	return &types.CharInterval{Start: pos, End: pos + len(snippet)}
}

// normalizedAlign case-folds both strings and collapses whitespace runs to
// a single space, keeping a map from normalized byte positions back to the
// original text, then searches the normalized snippet in the normalized
// text and maps the match span back through the index map (R2.2).
func normalizedAlign(snippet, text string) *types.CharInterval {
	normSnip, _ := foldWithMap(snippet)
	if normSnip == "" {
		return nil
	}
	normText, backMap := foldWithMap(text)

	pos := strings.Index(normText, normSnip)
	if pos < 0 {
		return nil
	}

	start := backMap[pos]
	lastRuneStart := backMap[pos+len(normSnip)-1]
	_, size := utf8.DecodeRuneInString(text[lastRuneStart:])
	return &types.CharInterval{Start: start, End: lastRuneStart + size}
}

// foldWithMap lowercases s and collapses each whitespace run to a single
// space, dropping leading and trailing whitespace. The returned slice maps
// every byte of the folded string to the byte offset in s of the rune it
// came from.
func foldWithMap(s string) (string, []int) {
	var b strings.Builder
	var m []int

	pendingSpace := false
	spaceAt := 0
	for i, r := range s {
		if unicode.IsSpace(r) {
			if b.Len() > 0 && !pendingSpace {
				pendingSpace = true
				spaceAt = i
			}
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			m = append(m, spaceAt)
			pendingSpace = false
		}
		low := unicode.ToLower(r)
		for k := 0; k < utf8.RuneLen(low); k++ {
			m = append(m, i)
		}
		b.WriteRune(low)
	}
	return b.String(), m
}

// flexAlign compiles the snippet into a pattern whose literal tokens are
// fixed text and whose whitespace runs match one or more whitespace
// characters, then searches text for the first occurrence (R2.3).
func flexAlign(snippet, text string) *types.CharInterval {
	tokens := strings.Fields(snippet)
	if len(tokens) == 0 {
		return nil
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	re, err := regexp.Compile(`(?i)\b` + strings.Join(quoted, `\s+`) + `\b`)
	if err != nil {
		return nil
	}

	loc := re.FindStringIndex(text)
	if loc == nil || loc[0] == loc[1] {
		return nil
	}
	return &types.CharInterval{Start: loc[0], End: loc[1]}
}
