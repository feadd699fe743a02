// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider adapts model-calling APIs behind a single capability:
// given a rendered prompt, return the raw model output text. The pipeline
// treats the call as opaque and retryable; backends classify their own
// failures so the retry loop knows which are worth another attempt.
// Implements: prd004-providers (R1, R3);
//
//	docs/ARCHITECTURE § Providers.
package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

// Provider is the extraction call capability consumed by the pipeline.
type Provider interface {
	// Name identifies the backend for run metadata.
	Name() string

	// Invoke sends the prompt and returns the raw model output text.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Error is a failed provider call. Transient failures (rate limits,
// server errors, transport problems) are worth retrying; the rest are not.
type Error struct {
	Status    int
	Message   string
	Transient bool
}

func (e *Error) Error() string {
	return "provider call failed: " + e.Message
}

// IsTransient reports whether err is worth retrying: a provider Error
// marked transient, a deadline expiry, or a transport-level failure.
// A cancelled context is never transient; the run is being torn down.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// http.Client wraps every transport failure in url.Error.
	var ue *url.Error
	return errors.As(err, &ue)
}

// statusError builds an Error from an HTTP status and response body,
// classifying 408, 429 and all 5xx as transient.
func statusError(status int, body string) *Error {
	transient := status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
	msg := http.StatusText(status)
	if body != "" {
		msg += ": " + body
	}
	return &Error{Status: status, Message: msg, Transient: transient}
}

// New builds a backend from configuration. With no explicit provider, a
// model name containing a slash (the OpenRouter convention, e.g.
// "meta-llama/llama-3-70b") selects the OpenAI-compatible backend and
// anything else selects Anthropic.
func New(cfg types.ProviderConfig) (Provider, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout == 0 {
		client.Timeout = 120 * time.Second
	}

	name := cfg.Provider
	if name == "" {
		if strings.Contains(cfg.Model, "/") {
			name = types.ProviderOpenAI
		} else {
			name = types.ProviderAnthropic
		}
	}

	switch name {
	case types.ProviderAnthropic:
		return &Anthropic{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Client: client}, nil
	case types.ProviderOpenAI:
		return &OpenAI{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Client: client}, nil
	default:
		return nil, types.ConfigErrorf("unknown provider %q", name)
	}
}
