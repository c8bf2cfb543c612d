package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/logging"
	"github.com/hupe1980/recallgraph/model"
)

// KeepRecent is the number of most recent turns compaction preserves.
const KeepRecent = 2

const (
	createSummaryPrompt = "Create a summary of the conversation above:"
	extendSummaryPrompt = "This is a summary of the conversation to date:\n%s\n\nExtend the summary by taking into account the new messages above:"
)

// Compaction is the result of summarizing a conversation.
type Compaction struct {
	// Summary replaces the session summary. It extends the prior one.
	Summary string
	// Remove lists the ids of the turns the summary now accounts for.
	Remove []string
	// Kept is the turn sequence after removal.
	Kept []core.Turn
}

// Apply returns a copy of sess with the compaction applied.
func (c Compaction) Apply(sess *core.Session) *core.Session {
	out := sess.Clone()
	out.Summary = c.Summary
	out.Turns = append([]core.Turn(nil), c.Kept...)
	out.Updated = time.Now().UTC()
	return out
}

// Summarizer folds older turns into the running summary.
type Summarizer struct {
	model  model.Model
	logger logging.Logger
}

// NewSummarizer creates a summarizer backed by m.
func NewSummarizer(m model.Model, logger logging.Logger) *Summarizer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Summarizer{model: m, logger: logger}
}

// SummaryPrompt returns the instruction appended after the conversation.
func SummaryPrompt(prior string) string {
	if prior == "" {
		return createSummaryPrompt
	}
	return fmt.Sprintf(extendSummaryPrompt, prior)
}

// Summarize asks the model to extend prior with turns and marks every turn
// but the last KeepRecent for removal. On failure nothing is removed. An
// empty reply keeps prior and removes nothing.
func (s *Summarizer) Summarize(ctx context.Context, turns []core.Turn, prior string) (Compaction, error) {
	msgs := make([]core.Turn, 0, len(turns)+1)
	msgs = append(msgs, turns...)
	msgs = append(msgs, core.NewUserTurn(SummaryPrompt(prior)))

	start := time.Now()
	resp, err := model.Collect(ctx, s.model, model.Request{Turns: msgs}, nil)
	if err != nil {
		return Compaction{}, fmt.Errorf("summarize: %w", err)
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		s.logger.Warn("summarizer.empty_reply", "turns", len(turns))
		return Compaction{Summary: prior, Kept: append([]core.Turn(nil), turns...)}, nil
	}

	cut := max(len(turns)-KeepRecent, 0)
	remove := make([]string, 0, cut)
	for _, t := range turns[:cut] {
		remove = append(remove, t.ID)
	}

	s.logger.Debug("summarizer.compacted",
		"removed", len(remove),
		"summary_len", len(summary),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Compaction{
		Summary: summary,
		Remove:  remove,
		Kept:    append([]core.Turn(nil), turns[cut:]...),
	}, nil
}
