package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"research-orchestrator/internal/domain"
	"research-orchestrator/internal/domain/model"
	"research-orchestrator/internal/domain/ports/adapter"
	"research-orchestrator/internal/infra/metrics"
)

var _ adapter.WebSearcher = (*TavilyAdapter)(nil)

// TavilyAdapter calls the Tavily search API with the caller's key.
type TavilyAdapter struct {
	base   string // e.g., https://api.tavily.com
	client *http.Client
}

func NewTavilyAdapter(base string, timeout time.Duration) *TavilyAdapter {
	if base == "" {
		base = "https://api.tavily.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TavilyAdapter{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (t *TavilyAdapter) Search(ctx context.Context, apiKey, query string, maxResults int) ([]adapter.WebResult, error) {
	if apiKey == "" {
		return nil, errors.New("tavily api key empty")
	}
	if !model.ValidSearchQuery(query) {
		return nil, fmt.Errorf("%w: search query %q", domain.ErrInvalidArgument, query)
	}
	reqBody := struct {
		APIKey            string `json:"api_key"`
		Query             string `json:"query"`
		SearchDepth       string `json:"search_depth"`
		IncludeRawContent bool   `json:"include_raw_content"`
		MaxResults        int    `json:"max_results"`
	}{APIKey: apiKey, Query: query, SearchDepth: "advanced", MaxResults: maxResults}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+"/search", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		metrics.ObserveExternalCall("tavily", "search", time.Since(start), false)
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.ObserveExternalCall("tavily", "search", time.Since(start), false)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		Results []adapter.WebResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.ObserveExternalCall("tavily", "search", time.Since(start), false)
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	metrics.ObserveExternalCall("tavily", "search", time.Since(start), true)
	return payload.Results, nil
}
