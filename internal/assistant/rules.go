package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/bazaar/internal/convert"
	"github.com/and161185/bazaar/internal/model"
)

// Rules is a deterministic stand-in for the generation backend, used for
// local development and demos.
type Rules struct{}

var _ Server = Rules{}

// Generate answers with a canned reply shaped by the prompt.
func (Rules) Generate(_ context.Context, prompt string, history []convert.Turn) (string, error) {
	p := strings.TrimSpace(prompt)
	switch {
	case strings.HasSuffix(p, "?"):
		return fmt.Sprintf("Good question. I've read %d earlier messages, but I can only echo for now: %q", len(history), p), nil
	case strings.EqualFold(p, "hi"), strings.EqualFold(p, "hello"):
		return "Hello! How can I help?", nil
	default:
		return "Noted: " + p, nil
	}
}

// Summarize lists participants and the last line. Lines ending in "!" count
// as decisions, lines starting with "todo" as action items.
func (Rules) Summarize(_ context.Context, history []convert.Turn) (model.Summary, error) {
	if len(history) == 0 {
		return model.Summary{Summary: "No messages yet."}, nil
	}
	var out model.Summary
	seen := map[string]bool{}
	var who []string
	for _, t := range history {
		if !seen[t.SenderID] {
			seen[t.SenderID] = true
			who = append(who, t.SenderID)
		}
		line := strings.TrimSpace(t.Text)
		switch {
		case strings.HasSuffix(line, "!"):
			out.Decisions = append(out.Decisions, line)
		case len(line) >= 4 && strings.EqualFold(line[:4], "todo"):
			out.ActionItems = append(out.ActionItems, strings.TrimSpace(strings.TrimLeft(line[4:], ":")))
		}
	}
	last := history[len(history)-1]
	out.Summary = fmt.Sprintf("%d messages between %s. Last: %s", len(history), strings.Join(who, ", "), last.Text)
	return out, nil
}
