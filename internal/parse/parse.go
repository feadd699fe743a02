// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package parse recovers candidate extractions from raw model output.
// Models wrap their JSON in prose, code fences, or loosely shaped objects;
// this package tolerates all of that and fails only when no payload can be
// recovered anywhere in the text.
// Implements: prd003-extraction (R2);
//
//	docs/ARCHITECTURE § Parsing.
package parse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoPayload reports model output with no recoverable extraction payload.
// The chunk processor records it as a parse error; it is never retried.
var ErrNoPayload = errors.New("no extraction payload found in model output")

// Candidate is one extraction as recovered from model output, before
// alignment. Class and Text are always non-empty.
type Candidate struct {
	Class      string
	Text       string
	Attributes map[string]any
}

// Key synonyms the model commonly substitutes for the canonical field names.
var (
	classKeys = []string{"extraction_class", "class", "type", "label", "category", "name"}
	textKeys  = []string{"extraction_text", "text", "value", "span", "extracted_text", "item"}
	attrKeys  = []string{"attributes", "attrs", "properties", "metadata", "meta"}
)

var codeFenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// Extractions parses raw model output into zero or more candidates. The
// payload may be a bare array or an object with an "extractions" key, and
// may be surrounded by prose or a code fence. Returns ErrNoPayload when
// nothing parseable is found; an empty "extractions" list is a valid
// payload with zero candidates.
func Extractions(raw string) ([]Candidate, error) {
	content := stripCodeFence(raw)

	if payload, ok := decodePayload(content); ok {
		return normalize(payload), nil
	}

	for _, candidate := range jsonCandidates(content) {
		if payload, ok := decodePayload(candidate); ok {
			return normalize(payload), nil
		}
	}

	return nil, ErrNoPayload
}

// stripCodeFence returns the contents of the first triple-backtick fence,
// or the input unchanged when there is none.
func stripCodeFence(s string) string {
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// decodePayload unmarshals s and pulls out the extraction list: either the
// value under a top-level "extractions" key or a bare array.
func decodePayload(s string) (any, bool) {
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, false
	}
	switch v := parsed.(type) {
	case map[string]any:
		if inner, ok := v["extractions"]; ok {
			return inner, true
		}
	case []any:
		return v, true
	}
	return nil, false
}

// jsonCandidates scans text for balanced {...} or [...] substrings,
// skipping brackets inside JSON strings, and returns them in order of
// appearance. The model frequently embeds one such object in prose.
func jsonCandidates(text string) []string {
	var candidates []string

	for i := 0; i < len(text); {
		open := text[i]
		if open != '{' && open != '[' {
			i++
			continue
		}
		closing := byte('}')
		if open == '[' {
			closing = ']'
		}

		depth := 0
		inString := false
		escaped := false
		end := -1
		for j := i; j < len(text); j++ {
			c := text[j]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case closing:
				depth--
				if depth == 0 {
					end = j
				}
			}
			if end >= 0 {
				break
			}
		}

		if end < 0 {
			i++
			continue
		}
		candidates = append(candidates, text[i:end+1])
		i = end + 1
	}

	return candidates
}

// normalize converts the many shapes models produce into a flat candidate
// list: objects with synonym keys, nested "extractions" wrappers, nested
// lists, single-pair objects, and bare "class: text" strings. Items with
// no usable class or text are dropped.
func normalize(raw any) []Candidate {
	var out []Candidate

	var items []any
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		items = v
	default:
		items = []any{v}
	}

	for _, item := range items {
		switch v := item.(type) {
		case []any:
			out = append(out, normalize(v)...)
		case map[string]any:
			if inner, ok := v["extractions"]; ok {
				out = append(out, normalize(inner)...)
				continue
			}
			if c, ok := objectCandidate(v); ok {
				out = append(out, c)
			}
		case string:
			if c, ok := stringCandidate(v); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// objectCandidate maps a JSON object to a candidate via the synonym key
// sets. A one-pair object like {"medication": "Lisinopril"} is read as
// class: text.
func objectCandidate(obj map[string]any) (Candidate, bool) {
	lower := make(map[string]string, len(obj))
	for k := range obj {
		lower[strings.ToLower(k)] = k
	}

	classKey := firstKey(lower, classKeys)
	textKey := firstKey(lower, textKeys)

	if classKey == "" || textKey == "" {
		if len(obj) == 1 {
			for k, v := range obj {
				return newCandidate(k, asString(v), nil)
			}
		}
		return Candidate{}, false
	}

	attrs := map[string]any{}
	if attrKey := firstKey(lower, attrKeys); attrKey != "" {
		switch a := obj[attrKey].(type) {
		case map[string]any:
			attrs = a
		case nil:
		default:
			attrs = map[string]any{"value": a}
		}
	}

	return newCandidate(asString(obj[classKey]), asString(obj[textKey]), attrs)
}

// stringCandidate reads a bare string item, either as embedded JSON or as
// a "class: text" line.
func stringCandidate(s string) (Candidate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Candidate{}, false
	}

	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err == nil {
		if _, isStr := parsed.(string); !isStr {
			if nested := normalize(parsed); len(nested) == 1 {
				return nested[0], true
			}
			return Candidate{}, false
		}
	}

	if class, text, ok := strings.Cut(s, ":"); ok {
		return newCandidate(class, text, nil)
	}
	return Candidate{}, false
}

func newCandidate(class, text string, attrs map[string]any) (Candidate, bool) {
	class = strings.TrimSpace(class)
	text = strings.TrimSpace(text)
	if class == "" || text == "" {
		return Candidate{}, false
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return Candidate{Class: class, Text: text, Attributes: attrs}, true
}

func firstKey(lower map[string]string, synonyms []string) string {
	for _, syn := range synonyms {
		if orig, ok := lower[syn]; ok {
			return orig
		}
	}
	return ""
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
