package history

import (
	"slices"

	"github.com/langchain-ai/opengpts-go/internal/models"
	"github.com/langchain-ai/opengpts-go/internal/stream"
)

// Compose builds the displayed timeline from the persisted view and the stream session state.
// It is a pure function with no state of its own.
//
// While a session is inflight, or when merge is requested, the persisted messages come first
// followed by stream messages whose ids the view doesn't already hold. A finished session that
// isn't merging is shown exclusively: its buffer already carries the complete turn, including
// the prior turns seeded at start. With no session at all, the persisted view alone is shown.
func Compose(view *View, snap *stream.Snapshot, merge bool) []models.Message {
	switch {
	case snap == nil:
		if view == nil {
			return nil
		}
		return slices.Clone(view.Messages)
	case snap.Status == stream.StatusInflight || merge:
		var out []models.Message
		seen := make(map[string]struct{})
		if view != nil {
			out = slices.Clone(view.Messages)
			for _, m := range out {
				seen[m.ID] = struct{}{}
			}
		}
		for _, m := range snap.Messages {
			if _, ok := seen[m.ID]; !ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return slices.Clone(snap.Messages)
	}
}
