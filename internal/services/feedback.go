package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// SendFeedback associates a score with a run. Failures are logged and swallowed: feedback is
// best-effort and must never disturb the conversation flow.
func (c Client) SendFeedback(ctx context.Context, runID, key string, score float64) {
	body := map[string]any{
		"run_id": runID,
		"key":    key,
		"score":  score,
	}
	if err := c.postJSON(ctx, "/runs/feedback", body, nil); err != nil {
		c.logger.Error("Failed to send feedback",
			slog.String("runID", runID),
			slog.String("err", err.Error()))
	}
}

// UpdateThreadMetadata writes thread-level metadata used by the server for few-shot example
// selection. Like SendFeedback, it is fire-and-forget.
func (c Client) UpdateThreadMetadata(ctx context.Context, threadID string, metadata map[string]json.RawMessage) {
	body := map[string]any{"metadata": metadata}
	if err := c.doJSON(ctx, http.MethodPut, "/threads/"+threadID, body, nil); err != nil {
		c.logger.Error("Failed to update thread metadata",
			slog.String("threadID", threadID),
			slog.String("err", err.Error()))
	}
}
