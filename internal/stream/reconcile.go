package stream

import (
	"slices"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

// Merge reconciles an incoming batch of messages into an existing timeline. For each incoming
// message, in order: if the timeline already holds its id, the entry is replaced in place with
// the incoming value (the feed always carries the full accumulated content per id, not a diff);
// otherwise the message is appended. The input slices are never mutated.
//
// Merge is idempotent per id and preserves the first-seen order of distinct ids no matter how
// often an id is re-merged. It never removes an id.
func Merge(existing, incoming []models.Message) []models.Message {
	merged := slices.Clone(existing)
	for _, msg := range incoming {
		idx := slices.IndexFunc(merged, func(m models.Message) bool { return m.ID == msg.ID })
		if idx >= 0 {
			merged[idx] = msg
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}
