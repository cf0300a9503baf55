// Package suggest proposes item names a family is likely to need again.
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/vbonduro/famshop/internal/store"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

type Suggester interface {
	Suggest(ctx context.Context, familyID string, limit int) ([]string, error)
}

// History is the purchase history lookup, ranked by frequency.
type History interface {
	PurchaseHistory(ctx context.Context, familyID string, limit int) ([]store.NameCount, error)
}

// HistorySuggester returns the most frequently purchased names that are not
// currently open on the family's list.
type HistorySuggester struct {
	history History
}

func NewHistorySuggester(h History) *HistorySuggester {
	return &HistorySuggester{history: h}
}

func (s *HistorySuggester) Suggest(ctx context.Context, familyID string, limit int) ([]string, error) {
	counts, err := s.history.PurchaseHistory(ctx, familyID, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return Names(counts), nil
}

// ClampLimit applies the default and the upper bound.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Names never returns nil.
func Names(counts []store.NameCount) []string {
	names := make([]string, 0, len(counts))
	for _, c := range counts {
		names = append(names, c.Name)
	}
	return names
}

// Prompt asks a model to rank the candidates for the next shopping trip.
func Prompt(candidates []store.NameCount, limit int) string {
	var b strings.Builder
	b.WriteString("A family is planning its next shopping trip. These items were bought before, ")
	b.WriteString("with the number of times each was bought:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%s | %d\n", c.Name, c.Count)
	}
	fmt.Fprintf(&b, "Pick at most %d of these items that they most likely need now, most likely first. ", limit)
	b.WriteString("Respond in plain text with one item name per line, exactly as written above, and nothing else.")
	return b.String()
}

// ParseResponse extracts one name per line, dropping preamble, list markers
// and anything after a "|".
func ParseResponse(raw string) []string {
	names := make([]string, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Here") || strings.HasPrefix(line, "Based on") || strings.HasSuffix(line, ":") {
			continue
		}
		line = strings.TrimLeft(line, "-*• ")
		line = trimNumbering(line)
		if i := strings.IndexByte(line, '|'); i >= 0 {
			line = line[:i]
		}
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// trimNumbering drops a leading "1." or "1)".
func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}

// Rank orders candidates by the model's picks, keeping only names that were
// candidates, then fills up with the remaining candidates in history order.
// Names compare case-insensitively.
func Rank(picks []string, candidates []store.NameCount, limit int) []string {
	byKey := make(map[string]string, len(candidates))
	for _, c := range candidates {
		byKey[strings.ToLower(c.Name)] = c.Name
	}

	out := make([]string, 0, limit)
	used := make(map[string]bool, limit)
	add := func(name string) {
		key := strings.ToLower(name)
		canonical, ok := byKey[key]
		if !ok || used[key] || len(out) >= limit {
			return
		}
		used[key] = true
		out = append(out, canonical)
	}
	for _, p := range picks {
		add(p)
	}
	for _, c := range candidates {
		add(c.Name)
	}
	return out
}
