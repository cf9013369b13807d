// Package edit stages local rewrites of displayed messages and commits them as one atomic
// write to the thread's persisted state.
package edit

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

// ErrNoThread is returned by Commit when the buffer has no thread identity to commit against,
// e.g. an unsaved draft chat.
var ErrNoThread = errors.New("no thread to commit edits to")

// Committer writes the full staged message set to a thread's persisted state. The write is
// all-or-nothing; there is no partial-success contract.
type Committer interface {
	UpdateThreadState(ctx context.Context, threadID string, messages []models.Message) error
}

// Buffer holds draft copies of edited messages keyed by message id. Drafts shadow the
// displayed timeline; they are never merged into a stream session's buffer. Commit sends the
// entire staged set atomically: on success the whole buffer is cleared and the registered
// resynchronization callback runs, on failure the buffer is left untouched so the user can
// retry.
type Buffer struct {
	committer   Committer
	logger      *slog.Logger
	onCommitted func(threadID string)

	mu     sync.Mutex
	drafts map[string]models.Message
	order  []string
}

// NewBuffer creates an empty Buffer. onCommitted, when non-nil, runs after every successful
// commit with the thread id that was written.
func NewBuffer(committer Committer, logger *slog.Logger, onCommitted func(threadID string)) *Buffer {
	if onCommitted == nil {
		onCommitted = func(string) {}
	}
	return &Buffer{
		committer:   committer,
		logger:      logger.With(slog.String("module", "edit")),
		onCommitted: onCommitted,
		drafts:      make(map[string]models.Message),
	}
}

// RecordEdit stages a full draft copy of the message under its id, replacing any previous
// draft for the same id.
func (b *Buffer) RecordEdit(msg models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.drafts[msg.ID]; !ok {
		b.order = append(b.order, msg.ID)
	}
	b.drafts[msg.ID] = msg
}

// AbandonEdit drops the draft for one message id. Unknown ids are ignored.
func (b *Buffer) AbandonEdit(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.drafts[id]; !ok {
		return
	}
	delete(b.drafts, id)
	b.order = slices.DeleteFunc(b.order, func(s string) bool { return s == id })
}

// AbandonAll discards every staged draft.
func (b *Buffer) AbandonAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts = make(map[string]models.Message)
	b.order = nil
}

// Draft returns the staged draft for id, if any.
func (b *Buffer) Draft(id string) (models.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.drafts[id]
	return msg, ok
}

// Drafts returns the staged drafts in the order they were first recorded.
func (b *Buffer) Drafts() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.draftsLocked()
}

func (b *Buffer) draftsLocked() []models.Message {
	out := make([]models.Message, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.drafts[id])
	}
	return out
}

// Len reports how many drafts are staged.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.drafts)
}

// Shadow overlays staged drafts onto a displayed timeline: any message with a draft is shown
// as its draft. The input slice is not mutated.
func (b *Buffer) Shadow(messages []models.Message) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.drafts) == 0 {
		return messages
	}

	out := slices.Clone(messages)
	for i, msg := range out {
		if draft, ok := b.drafts[msg.ID]; ok {
			out[i] = draft
		}
	}
	return out
}

// Commit writes the entire staged set to threadID's persisted state in a single operation.
// A failed write leaves every draft in place; the error is logged and returned for surfacing,
// not for control flow.
func (b *Buffer) Commit(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrNoThread
	}

	b.mu.Lock()
	if len(b.drafts) == 0 {
		b.mu.Unlock()
		return nil
	}
	staged := b.draftsLocked()
	b.mu.Unlock()

	if err := b.committer.UpdateThreadState(ctx, threadID, staged); err != nil {
		b.logger.Error("Failed to commit edits",
			slog.String("threadID", threadID),
			slog.Int("drafts", len(staged)),
			slog.String("err", err.Error()))
		return err
	}

	b.mu.Lock()
	b.drafts = make(map[string]models.Message)
	b.order = nil
	b.mu.Unlock()

	b.onCommitted(threadID)
	return nil
}
