package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vbonduro/famshop/internal/suggest"
)

const candidateFactor = 3

// OllamaSuggester ranks purchase history with a local model served by ollama.
type OllamaSuggester struct {
	host    string
	model   string
	client  *http.Client
	history suggest.History
	logger  *slog.Logger
}

func NewOllamaSuggester(host, model string, history suggest.History, logger *slog.Logger) *OllamaSuggester {
	return &OllamaSuggester{
		host:    host,
		model:   model,
		client:  &http.Client{},
		history: history,
		logger:  logger,
	}
}

func (s *OllamaSuggester) Suggest(ctx context.Context, familyID string, limit int) ([]string, error) {
	limit = suggest.ClampLimit(limit)
	candidates, err := s.history.PurchaseHistory(ctx, familyID, limit*candidateFactor)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= 1 {
		return suggest.Rank(nil, candidates, limit), nil
	}

	picks, err := s.generate(ctx, suggest.Prompt(candidates, limit))
	if err != nil {
		s.logger.Warn("ollama suggestions failed, using history", "family_id", familyID, "error", err)
		picks = nil
	}
	return suggest.Rank(picks, candidates, limit), nil
}

func (s *OllamaSuggester) generate(ctx context.Context, prompt string) ([]string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  s.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Error("failed to close ollama response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var body struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return suggest.ParseResponse(body.Response), nil
}
