package claude

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/famshop/internal/suggest"
)

// candidateFactor widens the history pulled for the model to choose from.
const candidateFactor = 3

type ClaudeSuggester struct {
	client  *anthropic.Client
	model   string
	history suggest.History
	logger  *slog.Logger
}

func NewClaudeSuggester(apiKey, model string, history suggest.History, logger *slog.Logger, opts ...anthropic.ClientOption) *ClaudeSuggester {
	return &ClaudeSuggester{
		client:  anthropic.NewClient(apiKey, opts...),
		model:   model,
		history: history,
		logger:  logger,
	}
}

// Suggest lets the model rank the family's purchase history. When the model
// call fails the plain history order is returned.
func (s *ClaudeSuggester) Suggest(ctx context.Context, familyID string, limit int) ([]string, error) {
	limit = suggest.ClampLimit(limit)
	candidates, err := s.history.PurchaseHistory(ctx, familyID, limit*candidateFactor)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= 1 {
		return suggest.Rank(nil, candidates, limit), nil
	}

	picks, err := s.ask(ctx, suggest.Prompt(candidates, limit))
	if err != nil {
		s.logger.Warn("claude suggestions failed, using history", "family_id", familyID, "error", err)
		picks = nil
	}
	return suggest.Rank(picks, candidates, limit), nil
}

func (s *ClaudeSuggester) ask(ctx context.Context, prompt string) ([]string, error) {
	resp, err := s.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(s.model),
		MaxTokens: 512,
		Messages:  []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}
	return suggest.ParseResponse(resp.GetFirstContentText()), nil
}
