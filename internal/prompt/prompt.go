// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt builds the instruction prompt sent to the model for each
// chunk: task description, few-shot examples, and the chunk text, with the
// response format pinned to a single JSON object.
// Implements: prd004-providers R2;
//
//	docs/ARCHITECTURE § Prompting.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

// extractionTmpl instructs the model to respond with only the extractions
// object. Example outputs are serialized the same way the parser expects
// them back (prd004-providers R2.2).
var extractionTmpl = template.Must(template.New("extraction").Parse(`You are an information extraction assistant.

IMPORTANT: Respond with a single, valid JSON object and nothing else. The object MUST have a top-level key "extractions" which is a list. Each extraction object must look like:
{"extraction_class": "string", "extraction_text": "string", "attributes": {}}

-- TASK DESCRIPTION --
{{.Description}}
{{if .Examples}}
-- EXAMPLES --
{{range .Examples}}Text:
'''
{{.Text}}
'''

JSON Output:
{{.JSON}}

{{end}}{{end}}-- TASK --
If there are no extractions, return {"extractions": []}.

Text:
'''
{{.Text}}
'''

JSON Output:`))

type renderedExample struct {
	Text string
	JSON string
}

// Build renders the prompt for one chunk. Intervals on example extractions
// are stripped: the model is never asked to produce offsets.
func Build(description string, examples []types.Example, text string) (string, error) {
	rendered := make([]renderedExample, 0, len(examples))
	for _, ex := range examples {
		extractions := make([]types.Extraction, len(ex.Extractions))
		for i, e := range ex.Extractions {
			e.Interval = nil
			extractions[i] = e
		}
		payload, err := json.MarshalIndent(map[string]any{"extractions": extractions}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling example extractions: %w", err)
		}
		rendered = append(rendered, renderedExample{Text: ex.Text, JSON: string(payload)})
	}

	var buf bytes.Buffer
	err := extractionTmpl.Execute(&buf, struct {
		Description string
		Examples    []renderedExample
		Text        string
	}{Description: description, Examples: rendered, Text: text})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}
