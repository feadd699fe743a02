// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the value types shared across pipeline stages.
// Implements: prd001-chunking (R1), prd002-alignment (R1);
//
//	docs/ARCHITECTURE § Data Model.
package types

import "fmt"

// CharInterval is a half-open [Start, End) range of byte offsets into a
// document's text. A nil *CharInterval on an Extraction means the snippet
// could not be located in the source (an unaligned extraction, not an error).
type CharInterval struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// NewCharInterval builds an interval after checking 0 <= start < end.
func NewCharInterval(start, end int) (*CharInterval, error) {
	if start < 0 || end < 0 {
		return nil, fmt.Errorf("char interval bounds must be non-negative, got [%d, %d)", start, end)
	}
	if start >= end {
		return nil, fmt.Errorf("char interval start must be less than end, got [%d, %d)", start, end)
	}
	return &CharInterval{Start: start, End: end}, nil
}

// Len returns the number of bytes covered by the interval.
func (iv CharInterval) Len() int {
	return iv.End - iv.Start
}

// Overlaps reports whether the two intervals share at least one position.
func (iv CharInterval) Overlaps(other CharInterval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// Shift returns a copy of the interval translated by offset. Used to map a
// chunk-local interval into document space.
func (iv CharInterval) Shift(offset int) CharInterval {
	return CharInterval{Start: iv.Start + offset, End: iv.End + offset}
}

func (iv CharInterval) String() string {
	return fmt.Sprintf("[%d, %d)", iv.Start, iv.End)
}
