// Package ai implements the relevance and enrichment model calls on top of
// the Cohere chat API.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"fundwatch/internal/config"
	"fundwatch/internal/geo"
)

// EnrichedFields is the structured payload the enrichment call must produce.
// Deadline stays verbatim here; date resolution belongs to the caller.
type EnrichedFields struct {
	FocusAreas    []string `json:"focus_areas"`
	FundingAmount string   `json:"funding_amount"`
	Funder        string   `json:"funder"`
	Deadline      string   `json:"deadline"`
	Summary       string   `json:"summary"`
}

const maxFocusAreas = 3

type Engine struct {
	client          *cohereclient.Client
	model           string
	timeout         time.Duration
	validFocusAreas []string
	logger          *slog.Logger
}

func NewEngine(cfg config.AIConfig, validFocusAreas []string, logger *slog.Logger) *Engine {
	return &Engine{
		client:          cohereclient.NewClient(cohereclient.WithToken(cfg.APIKey)),
		model:           cfg.Model,
		timeout:         cfg.Timeout,
		validFocusAreas: validFocusAreas,
		logger:          logger.With("component", "ai"),
	}
}

// ClassifyRegions runs the cheap first-stage call that extracts eligible and
// excluded regions from the posting text.
func (e *Engine) ClassifyRegions(ctx context.Context, title, text string) (geo.Classification, error) {
	reply, err := e.generate(ctx, classifyPrompt(title, text))
	if err != nil {
		return geo.Classification{}, err
	}

	cls, err := parseClassification(reply)
	if err != nil {
		return geo.Classification{}, &Error{Kind: Permanent, RawOutput: reply, Err: err}
	}

	e.logger.Debug("classified regions",
		"title", snippet(title, 60),
		"eligible", cls.Eligible,
		"excluded", cls.Excluded,
	)
	return cls, nil
}

// Enrich runs the second-stage call that extracts the full opportunity
// record. Only relevance-passed postings should reach it.
func (e *Engine) Enrich(ctx context.Context, title, text string) (EnrichedFields, error) {
	reply, err := e.generate(ctx, enrichPrompt(title, text, e.validFocusAreas))
	if err != nil {
		return EnrichedFields{}, err
	}

	fields, err := parseEnrichment(reply, e.validFocusAreas)
	if err != nil {
		return EnrichedFields{}, &Error{Kind: Permanent, RawOutput: reply, Err: err}
	}

	e.logger.Debug("enriched posting", "title", snippet(title, 60))
	return fields, nil
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Chat(ctx, &cohere.ChatRequest{
		Message: prompt,
		Model:   &e.model,
	})
	if err != nil {
		return "", classifyErr(err)
	}

	return resp.Text, nil
}

// Models wrap JSON in prose or markdown fences often enough that we extract
// the first object instead of unmarshalling the reply as-is.
var jsonObjectExpr = regexp.MustCompile(`(?s)\{.*\}`)

func parseClassification(reply string) (geo.Classification, error) {
	block := jsonObjectExpr.FindString(reply)
	if block == "" {
		return geo.Classification{}, fmt.Errorf("no JSON object in reply")
	}

	var payload struct {
		Eligible *[]string `json:"eligible"`
		Excluded *[]string `json:"excluded"`
	}
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return geo.Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if payload.Eligible == nil || payload.Excluded == nil {
		return geo.Classification{}, fmt.Errorf("classification missing eligible or excluded key")
	}

	return geo.Classification{Eligible: *payload.Eligible, Excluded: *payload.Excluded}, nil
}

func parseEnrichment(reply string, validFocusAreas []string) (EnrichedFields, error) {
	block := jsonObjectExpr.FindString(reply)
	if block == "" {
		return EnrichedFields{}, fmt.Errorf("no JSON object in reply")
	}

	var fields EnrichedFields
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return EnrichedFields{}, fmt.Errorf("decode enrichment: %w", err)
	}
	if fields.Summary == "" {
		return EnrichedFields{}, fmt.Errorf("enrichment missing summary")
	}

	fields.FocusAreas = filterFocusAreas(fields.FocusAreas, validFocusAreas)
	return fields, nil
}

func filterFocusAreas(areas, valid []string) []string {
	known := make(map[string]string, len(valid))
	for _, v := range valid {
		known[strings.ToLower(v)] = v
	}

	var out []string
	for _, a := range areas {
		if canonical, ok := known[strings.ToLower(strings.TrimSpace(a))]; ok {
			out = append(out, canonical)
		}
		if len(out) == maxFocusAreas {
			break
		}
	}
	return out
}
