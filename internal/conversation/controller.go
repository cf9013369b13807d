// Package conversation wires the stream session manager, history synchronizer, and edit
// buffer into the single surface a UI talks to: status, the composed display timeline, run
// id, and the start/stop/edit/commit operations.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/langchain-ai/opengpts-go/internal/edit"
	"github.com/langchain-ai/opengpts-go/internal/history"
	"github.com/langchain-ai/opengpts-go/internal/models"
	"github.com/langchain-ai/opengpts-go/internal/stream"
)

// Service is the remote conversational-agent API the controller drives.
type Service interface {
	stream.Streamer

	ThreadState(ctx context.Context, threadID string) (*models.ThreadState, error)
	UpdateThreadState(ctx context.Context, threadID string, messages []models.Message) error

	Threads(ctx context.Context) ([]models.Thread, error)
	CreateThread(ctx context.Context, name, assistantID string) (*models.Thread, error)
	Assistants(ctx context.Context) ([]models.Assistant, error)

	SendFeedback(ctx context.Context, runID, key string, score float64)
	UpdateThreadMetadata(ctx context.Context, threadID string, metadata map[string]json.RawMessage)
}

// Catalog is an optional local cache for sidebar listings, consulted when the server cannot
// be reached.
type Catalog interface {
	PutThreads(ctx context.Context, threads []models.Thread) error
	Threads(ctx context.Context) ([]models.Thread, error)
	PutAssistants(ctx context.Context, assistants []models.Assistant) error
	Assistants(ctx context.Context) ([]models.Assistant, error)
}

// feedbackKey names the score dimension attached to a run.
const feedbackKey = "user_score"

// Controller owns one displayed conversation at a time. The timeline it exposes is composed
// from three owners: the history view is the baseline, the stream session overrides it during
// generation, and staged edits shadow individual messages on top.
type Controller struct {
	service Service
	catalog Catalog
	logger  *slog.Logger

	sessions *stream.Manager
	history  *history.Synchronizer
	edits    *edit.Buffer

	onChange func()

	mu          sync.Mutex
	threadID    string
	assistantID string
	merge       bool
}

// New creates a Controller. cache and catalog may be nil to disable local caching. onChange,
// when non-nil, pokes the UI after any observable change; it must not block.
func New(service Service, cache history.Cache, catalog Catalog, logger *slog.Logger, onChange func()) *Controller {
	if onChange == nil {
		onChange = func() {}
	}

	c := &Controller{
		service:  service,
		catalog:  catalog,
		logger:   logger.With(slog.String("module", "conversation")),
		onChange: onChange,
	}

	c.sessions = stream.NewManager(service, logger, func(snap stream.Snapshot) {
		c.history.ObserveStream(context.Background(), snap)
		c.onChange()
	})
	c.history = history.NewSynchronizer(service, cache, logger, func(*history.View) {
		c.onChange()
	})
	c.edits = edit.NewBuffer(service, logger, func(string) {
		c.history.Refresh(context.Background())
		c.onChange()
	})

	return c
}

// SetThread switches the displayed conversation. The previous thread's session is torn down
// with its buffer cleared, staged edits are discarded, and the new thread's history is
// fetched. An empty id selects an unsaved draft chat.
func (c *Controller) SetThread(ctx context.Context, threadID string) {
	c.mu.Lock()
	prev := c.threadID
	c.threadID = threadID
	c.mu.Unlock()

	if prev != "" && prev != threadID {
		c.sessions.Drop(prev)
	}
	c.edits.AbandonAll()
	c.history.SetThread(ctx, threadID)
}

// SetAssistant selects the assistant configuration used for subsequent turns.
func (c *Controller) SetAssistant(assistantID string) {
	c.mu.Lock()
	c.assistantID = assistantID
	c.mu.Unlock()
}

// SetMergeView selects the history-plus-stream composition for turns started with Send. Start
// takes the flag per turn and overrides this preference.
func (c *Controller) SetMergeView(merge bool) {
	c.mu.Lock()
	c.merge = merge
	c.mu.Unlock()
}

// ThreadID returns the currently selected thread id, or "" for a draft chat.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Send appends a new human message to the displayed timeline and starts a turn carrying the
// full timeline as input. The message id is assigned locally so the text shows up before any
// server round trip.
func (c *Controller) Send(ctx context.Context, text string) error {
	human := models.Message{
		ID:      uuid.New().String(),
		Type:    models.RoleHuman,
		Content: models.Text(text),
	}
	c.mu.Lock()
	merge := c.merge
	c.mu.Unlock()

	input := append(c.Messages(), human)
	return c.Start(ctx, input, merge)
}

// Start opens a turn with the given input, which may be a []models.Message, any structured
// input, or nil to resume a pending continuation. merge requests the history-plus-stream
// composition for the turn. A turn already inflight for the thread is the caller's error,
// reported as stream.ErrTurnInflight.
func (c *Controller) Start(ctx context.Context, input any, merge bool) error {
	c.mu.Lock()
	threadID := c.threadID
	assistantID := c.assistantID
	c.merge = merge
	c.mu.Unlock()

	if threadID == "" {
		return fmt.Errorf("start turn: no thread selected")
	}

	extra := map[string]any{}
	if assistantID != "" {
		extra["assistant_id"] = assistantID
	}

	_, err := c.sessions.Start(ctx, input, threadID, extra)
	return err
}

// Stop cancels the current turn. clear=true additionally discards the partial output, for
// view teardown; clear=false keeps it visible, for a user-initiated "stop generating".
func (c *Controller) Stop(clear bool) {
	s := c.currentSession()
	if s != nil {
		s.Stop(clear)
	}
}

// Status reports the current turn's lifecycle state, or stream.StatusIdle with no turn.
func (c *Controller) Status() stream.Status {
	if s := c.currentSession(); s != nil {
		return s.Status()
	}
	return stream.StatusIdle
}

// RunID returns the server-assigned run id of the current turn, or "".
func (c *Controller) RunID() string {
	if s := c.currentSession(); s != nil {
		return s.RunID()
	}
	return ""
}

// Messages returns the composed display timeline: history as baseline, the stream session on
// top per the composition rule, staged edits shadowing individual messages last.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	merge := c.merge
	c.mu.Unlock()

	var snap *stream.Snapshot
	if s := c.currentSession(); s != nil {
		sn := s.Snapshot()
		snap = &sn
	}

	composed := history.Compose(c.history.View(), snap, merge)
	return c.edits.Shadow(composed)
}

// RecordEdit stages a draft rewrite of a displayed message.
func (c *Controller) RecordEdit(msg models.Message) {
	c.edits.RecordEdit(msg)
	c.onChange()
}

// AbandonEdit drops the draft for one message id.
func (c *Controller) AbandonEdit(id string) {
	c.edits.AbandonEdit(id)
	c.onChange()
}

// AbandonAllEdits drops every staged draft.
func (c *Controller) AbandonAllEdits() {
	c.edits.AbandonAll()
	c.onChange()
}

// PendingEdits reports how many drafts are staged.
func (c *Controller) PendingEdits() int {
	return c.edits.Len()
}

// Commit writes all staged drafts to the thread's persisted state as one atomic operation and
// refreshes the history view on success. Unavailable on a draft chat with no thread id.
func (c *Controller) Commit(ctx context.Context) error {
	return c.edits.Commit(ctx, c.ThreadID())
}

// SendFeedback scores the current turn's run. Without a run id there is nothing to score.
func (c *Controller) SendFeedback(ctx context.Context, score float64) {
	runID := c.RunID()
	if runID == "" {
		c.logger.Warn("No run to send feedback for")
		return
	}
	c.service.SendFeedback(ctx, runID, feedbackKey, score)
}

// MarkExample tags the current thread as a few-shot example source for the server.
func (c *Controller) MarkExample(ctx context.Context, example bool) {
	threadID := c.ThreadID()
	if threadID == "" {
		return
	}
	value, _ := json.Marshal(example)
	c.service.UpdateThreadMetadata(ctx, threadID, map[string]json.RawMessage{
		"example": value,
	})
}

// Threads lists the user's threads from the server, falling back to the local catalog when
// the server cannot be reached.
func (c *Controller) Threads(ctx context.Context) ([]models.Thread, error) {
	threads, err := c.service.Threads(ctx)
	if err != nil {
		if c.catalog == nil {
			return nil, err
		}
		c.logger.Error("Falling back to cached threads", slog.String("err", err.Error()))
		return c.catalog.Threads(ctx)
	}
	if c.catalog != nil {
		if cerr := c.catalog.PutThreads(ctx, threads); cerr != nil {
			c.logger.Error("Failed to cache threads", slog.String("err", cerr.Error()))
		}
	}
	return threads, nil
}

// Assistants lists the visible assistant configurations, with the same catalog fallback as
// Threads.
func (c *Controller) Assistants(ctx context.Context) ([]models.Assistant, error) {
	assistants, err := c.service.Assistants(ctx)
	if err != nil {
		if c.catalog == nil {
			return nil, err
		}
		c.logger.Error("Falling back to cached assistants", slog.String("err", err.Error()))
		return c.catalog.Assistants(ctx)
	}
	if c.catalog != nil {
		if cerr := c.catalog.PutAssistants(ctx, assistants); cerr != nil {
			c.logger.Error("Failed to cache assistants", slog.String("err", cerr.Error()))
		}
	}
	return assistants, nil
}

// NewThread creates a thread bound to the selected assistant and switches to it.
func (c *Controller) NewThread(ctx context.Context, name string) (*models.Thread, error) {
	c.mu.Lock()
	assistantID := c.assistantID
	c.mu.Unlock()

	thread, err := c.service.CreateThread(ctx, name, assistantID)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	c.SetThread(ctx, thread.ID)
	return thread, nil
}

func (c *Controller) currentSession() *stream.Session {
	return c.sessions.Session(c.ThreadID())
}
