// Package inference calls the external text-understanding service used by the
// journal sentiment rule. The service contract is strict: a prompt goes in and
// a single JSON object {sentiment, crisis_indicators, summary} comes back.
// Anything else is a contract violation and surfaces as an error; the caller
// decides what a failed analysis means (the rule layer fails open).
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDisabled is returned by the null-object Analyzer when journal analysis
// is not permitted by configuration.
var ErrDisabled = errors.New("inference: journal analysis disabled")

// Valid sentiment values in the response contract.
const (
	SentimentPositive   = "positive"
	SentimentNeutral    = "neutral"
	SentimentNegative   = "negative"
	SentimentConcerning = "concerning"
)

// Analysis is the structured result of a journal analysis call.
type Analysis struct {
	Sentiment        string `json:"sentiment"`
	CrisisIndicators bool   `json:"crisis_indicators"`
	Summary          string `json:"summary"`
}

// Analyzer produces an Analysis for a block of journal text.
type Analyzer interface {
	AnalyzeJournal(ctx context.Context, text string) (*Analysis, error)
}

// Config selects and configures the Analyzer implementation.
type Config struct {
	Enabled bool // both the feature flag and the DPA flag
	URL     string
	APIKey  string
	Timeout time.Duration
}

// New returns the HTTP-backed Client when analysis is permitted, otherwise
// the Disabled null object. The capability is fixed at construction time.
func New(cfg Config) Analyzer {
	if !cfg.Enabled || cfg.URL == "" {
		return Disabled{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether the Analyzer is a real backend rather than the
// Disabled null object. Callers holding patient text they only need for
// analysis should check this before reading it.
func Enabled(a Analyzer) bool {
	_, disabled := a.(Disabled)
	return !disabled
}

// Disabled is the null-object Analyzer used when compliance gating is off.
type Disabled struct{}

func (Disabled) AnalyzeJournal(context.Context, string) (*Analysis, error) {
	return nil, ErrDisabled
}

// Client calls the inference service over HTTP.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

type analyzeRequest struct {
	Prompt string `json:"prompt"`
}

func validSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentConcerning:
		return true
	}
	return false
}

// AnalyzeJournal sends the journal text and decodes the structured response.
// Non-2xx status, undecodable bodies, and out-of-contract sentiment values
// are all errors.
func (c *Client) AnalyzeJournal(ctx context.Context, text string) (*Analysis, error) {
	body, err := json.Marshal(analyzeRequest{Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call inference service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if !validSentiment(analysis.Sentiment) {
		return nil, fmt.Errorf("inference response has invalid sentiment %q", analysis.Sentiment)
	}
	return &analysis, nil
}
