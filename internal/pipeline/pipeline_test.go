// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/extraction-engine/internal/provider"
	"github.com/pdiddy/extraction-engine/pkg/types"
)

// fakeProvider scripts responses via a function, so tests can key replies
// off the chunk text embedded in the prompt.
type fakeProvider struct {
	fn    func(ctx context.Context, prompt string) (string, error)
	calls atomic.Int64
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, prompt)
}

// reply builds the standard extractions payload a well-behaved model
// would return.
func reply(exts ...types.Extraction) string {
	b, err := json.Marshal(map[string]any{"extractions": exts})
	if err != nil {
		panic(err)
	}
	return string(b)
}

const clinicalNote = "The patient, John Doe, was prescribed Lisinopril for hypertension."

func TestExtractSingleChunk(t *testing.T) {
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		return reply(types.Extraction{
			Class:      "medication",
			Text:       "Lisinopril",
			Attributes: map[string]any{"condition": "hypertension"},
		}), nil
	}}

	doc, err := Extract(context.Background(), clinicalNote, p, Options{
		PromptDescription: "Extract medication mentions.",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Text != clinicalNote {
		t.Errorf("document text altered: %q", doc.Text)
	}
	if len(doc.Extractions) != 1 {
		t.Fatalf("got %d extractions, want 1", len(doc.Extractions))
	}
	ext := doc.Extractions[0]
	if ext.Class != "medication" || ext.Text != "Lisinopril" {
		t.Errorf("got %q/%q", ext.Class, ext.Text)
	}
	if ext.Interval == nil {
		t.Fatal("extraction not grounded")
	}
	if ext.Interval.Start != 38 || ext.Interval.End != 48 {
		t.Errorf("interval = %v, want [38,48)", ext.Interval)
	}
	if got := clinicalNote[ext.Interval.Start:ext.Interval.End]; got != "Lisinopril" {
		t.Errorf("interval indexes %q", got)
	}

	if doc.Metadata[types.MetaNumChunks] != 1 {
		t.Errorf("num_chunks = %v", doc.Metadata[types.MetaNumChunks])
	}
	if doc.Metadata[types.MetaNumExtractions] != 1 {
		t.Errorf("num_extractions = %v", doc.Metadata[types.MetaNumExtractions])
	}
	if doc.Metadata[types.MetaProvider] != "fake" {
		t.Errorf("provider = %v", doc.Metadata[types.MetaProvider])
	}
	if _, present := doc.Metadata[types.MetaErrors]; present {
		t.Error("errors key present on clean run")
	}
}

func TestExtractMultiChunkOrder(t *testing.T) {
	// 26 bytes, chunk size 10, no overlap: chunks are [0,10) [10,20) [20,26).
	text := "abcdefghijklmnopqrstuvwxyz"
	p := &fakeProvider{fn: func(_ context.Context, prompt string) (string, error) {
		// Slow down early chunks so completion order inverts document order.
		switch {
		case strings.Contains(prompt, "abcdefghij"):
			time.Sleep(30 * time.Millisecond)
			return reply(types.Extraction{Class: "span", Text: "cde"}), nil
		case strings.Contains(prompt, "klmnopqrst"):
			time.Sleep(15 * time.Millisecond)
			return reply(types.Extraction{Class: "span", Text: "mno"}), nil
		default:
			return reply(types.Extraction{Class: "span", Text: "wxy"}), nil
		}
	}}

	doc, err := Extract(context.Background(), text, p, Options{
		Config: types.ExtractionConfig{ChunkSize: 10, MaxWorkers: 3},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(doc.Extractions) != 3 {
		t.Fatalf("got %d extractions, want 3", len(doc.Extractions))
	}
	wantStarts := []int{2, 12, 22}
	for i, ext := range doc.Extractions {
		if ext.Interval == nil {
			t.Fatalf("extraction %d not grounded", i)
		}
		if ext.Interval.Start != wantStarts[i] {
			t.Errorf("extraction %d start = %d, want %d", i, ext.Interval.Start, wantStarts[i])
		}
		if got := text[ext.Interval.Start:ext.Interval.End]; got != ext.Text {
			t.Errorf("extraction %d interval indexes %q, want %q", i, got, ext.Text)
		}
	}
}

func TestExtractBoundedMatchesExtract(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	fn := func(_ context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "abcdefghij"):
			return reply(types.Extraction{Class: "span", Text: "abc"}), nil
		case strings.Contains(prompt, "klmnopqrst"):
			return reply(types.Extraction{Class: "span", Text: "klm"}), nil
		default:
			return reply(types.Extraction{Class: "span", Text: "uvw"}), nil
		}
	}
	opts := Options{Config: types.ExtractionConfig{ChunkSize: 10, MaxWorkers: 2}}

	pooled, err := Extract(context.Background(), text, &fakeProvider{fn: fn}, opts)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	bounded, err := ExtractBounded(context.Background(), text, &fakeProvider{fn: fn}, opts)
	if err != nil {
		t.Fatalf("ExtractBounded: %v", err)
	}

	a, _ := json.Marshal(pooled)
	b, _ := json.Marshal(bounded)
	if string(a) != string(b) {
		t.Errorf("schedulers disagree:\npool:    %s\nbounded: %s", a, b)
	}
}

func TestExtractReturnModeRecordsErrors(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	p := &fakeProvider{fn: func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "klmnopqrst") {
			return "", &provider.Error{Status: 401, Message: "bad key"}
		}
		return reply(types.Extraction{Class: "span", Text: "abc"}), nil
	}}

	doc, err := Extract(context.Background(), text, p, Options{
		Config: types.ExtractionConfig{ChunkSize: 10, ErrorMode: types.ErrorModeReturn},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	errs := doc.Errors()
	if len(errs) != 1 {
		t.Fatalf("got %d chunk errors, want 1: %v", len(errs), errs)
	}
	ce, ok := errs[1]
	if !ok {
		t.Fatalf("chunk 1 missing from errors: %v", errs)
	}
	if ce.Kind != types.KindProvider {
		t.Errorf("kind = %q, want provider", ce.Kind)
	}
	if ce.ChunkStart != 10 || ce.ChunkEnd != 20 {
		t.Errorf("chunk bounds = [%d,%d), want [10,20)", ce.ChunkStart, ce.ChunkEnd)
	}
	// One extraction aligns only in the first chunk; third chunk has no
	// "abc" so it contributes an unaligned copy.
	if len(doc.Extractions) != 2 {
		t.Errorf("got %d extractions from surviving chunks, want 2", len(doc.Extractions))
	}
}

func TestExtractRaiseMode(t *testing.T) {
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		return "", &provider.Error{Status: 400, Message: "rejected"}
	}}

	doc, err := Extract(context.Background(), clinicalNote, p, Options{
		Config: types.ExtractionConfig{ErrorMode: types.ErrorModeRaise},
	})
	if err == nil {
		t.Fatal("expected error in raise mode")
	}
	if doc != nil {
		t.Errorf("got partial document %+v in raise mode", doc)
	}
	var ce *types.ChunkError
	if !errors.As(err, &ce) {
		t.Fatalf("error type %T, want *types.ChunkError", err)
	}
	if ce.Kind != types.KindProvider || ce.ChunkIndex != 0 {
		t.Errorf("got %+v", ce)
	}
}

func TestExtractParseFailure(t *testing.T) {
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		return "I could not find any structured data here.", nil
	}}

	doc, err := Extract(context.Background(), clinicalNote, p, Options{
		Config: types.ExtractionConfig{MaxRetries: 3},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	ce, ok := doc.Errors()[0]
	if !ok {
		t.Fatalf("parse failure not recorded: %v", doc.Metadata)
	}
	if ce.Kind != types.KindParse {
		t.Errorf("kind = %q, want parse", ce.Kind)
	}
	// Parse failures are deterministic and must not burn retries.
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

func TestExtractInvalidConfig(t *testing.T) {
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		t.Error("provider called despite invalid config")
		return "", nil
	}}

	_, err := Extract(context.Background(), clinicalNote, p, Options{
		Config: types.ExtractionConfig{ChunkSize: 10, ChunkOverlap: 10},
	})
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type %T, want *types.ConfigError", err)
	}
}

func TestExtractNilProvider(t *testing.T) {
	_, err := Extract(context.Background(), clinicalNote, nil, Options{})
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type %T, want *types.ConfigError", err)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		t.Error("provider called for empty document")
		return "", nil
	}}

	doc, err := Extract(context.Background(), "", p, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(doc.Extractions) != 0 {
		t.Errorf("got %d extractions", len(doc.Extractions))
	}
	if doc.Metadata[types.MetaNumChunks] != 0 {
		t.Errorf("num_chunks = %v", doc.Metadata[types.MetaNumChunks])
	}
}

func TestExtractOverlapDedupe(t *testing.T) {
	// Chunk size 20 with overlap 10 puts "Lisinopril" (bytes 38..48) in
	// both chunk 3 [30,50) and chunk 4 [40,60)... build the text so the
	// term straddles an overlap region and both chunks report it.
	text := "aaaaaaaaaa Lisinopril bbbbbbbbb"
	p := &fakeProvider{fn: func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Lisinopril") {
			return reply(types.Extraction{Class: "medication", Text: "Lisinopril"}), nil
		}
		return reply(), nil
	}}

	doc, err := Extract(context.Background(), text, p, Options{
		Config: types.ExtractionConfig{ChunkSize: 21, ChunkOverlap: 15, Dedupe: true},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(doc.Extractions) != 1 {
		t.Fatalf("got %d extractions after dedupe, want 1: %+v", len(doc.Extractions), doc.Extractions)
	}
	iv := doc.Extractions[0].Interval
	if iv == nil || text[iv.Start:iv.End] != "Lisinopril" {
		t.Errorf("surviving interval %v does not index the term", iv)
	}
}

func TestExtractContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &fakeProvider{fn: func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}}
	_, err := Extract(ctx, clinicalNote, p, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestInvokeRetriesTransient(t *testing.T) {
	var n atomic.Int64
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		if n.Add(1) <= 2 {
			return "", &provider.Error{Status: 503, Message: "overloaded", Transient: true}
		}
		return reply(types.Extraction{Class: "medication", Text: "Lisinopril"}), nil
	}}

	doc, err := Extract(context.Background(), clinicalNote, p, Options{
		Config: types.ExtractionConfig{MaxRetries: 2, RetryBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(doc.Errors()) != 0 {
		t.Errorf("chunk errors after successful retry: %v", doc.Errors())
	}
	if got := p.calls.Load(); got != 3 {
		t.Errorf("provider called %d times, want 3", got)
	}
}

func TestInvokeStopsOnNonTransient(t *testing.T) {
	p := &fakeProvider{fn: func(_ context.Context, _ string) (string, error) {
		return "", &provider.Error{Status: 401, Message: "bad key"}
	}}

	doc, err := Extract(context.Background(), clinicalNote, p, Options{
		Config: types.ExtractionConfig{MaxRetries: 5, RetryBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	ce := doc.Errors()[0]
	if !strings.Contains(ce.Message, "after 1 attempts") {
		t.Errorf("message = %q, want single attempt", ce.Message)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		policy  types.BackoffPolicy
		attempt int
		want    time.Duration
	}{
		{types.BackoffExponential, 1, time.Second},
		{types.BackoffExponential, 2, 2 * time.Second},
		{types.BackoffExponential, 3, 4 * time.Second},
		{types.BackoffLinear, 1, time.Second},
		{types.BackoffLinear, 2, 2 * time.Second},
		{types.BackoffLinear, 3, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.policy, tt.attempt), func(t *testing.T) {
			got := backoffDelay(tt.policy, time.Second, tt.attempt)
			if got != tt.want {
				t.Errorf("backoffDelay = %v, want %v", got, tt.want)
			}
		})
	}
}
