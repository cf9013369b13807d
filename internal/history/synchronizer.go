// Package history produces the authoritative message list for a thread from persisted storage
// and decides, together with an active stream session, what the displayed timeline is.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/langchain-ai/opengpts-go/internal/models"
	"github.com/langchain-ai/opengpts-go/internal/stream"
)

// Fetcher reads a thread's canonical persisted state from the server.
type Fetcher interface {
	ThreadState(ctx context.Context, threadID string) (*models.ThreadState, error)
}

// Cache is an optional local store of the last known state per thread, consulted when the
// server has not answered yet or cannot be reached.
type Cache interface {
	PutState(ctx context.Context, threadID string, state models.ThreadState) error
	State(ctx context.Context, threadID string) (*models.ThreadState, error)
}

// View is a thread's server-confirmed message list, the ids of pending continuations, and the
// config snapshot active at that point. FromCache marks a view served from the local cache
// while the server is unreachable or still being asked.
type View struct {
	ThreadID  string
	Messages  []models.Message
	Next      []string
	Config    json.RawMessage
	FromCache bool
}

// Synchronizer owns the history view for the currently selected thread. Every fetch it issues
// carries a generation number; a result is applied only when no newer result has been applied
// and the thread it was issued for is still the selected one. That makes the most recent
// request win even when network completions arrive out of order, so a stale fetch can never
// regress the displayed state.
type Synchronizer struct {
	fetcher  Fetcher
	cache    Cache
	logger   *slog.Logger
	onUpdate func(*View)

	mu       sync.Mutex
	threadID string
	issued   uint64
	applied  uint64
	view     *View
}

// NewSynchronizer creates a Synchronizer. cache may be nil to disable local caching. onUpdate,
// when non-nil, is invoked with the new view after every applied change; it must not block.
func NewSynchronizer(fetcher Fetcher, cache Cache, logger *slog.Logger, onUpdate func(*View)) *Synchronizer {
	if onUpdate == nil {
		onUpdate = func(*View) {}
	}
	return &Synchronizer{
		fetcher:  fetcher,
		cache:    cache,
		logger:   logger.With(slog.String("module", "history")),
		onUpdate: onUpdate,
	}
}

// SetThread switches the synchronizer to a new thread. The previous view is discarded
// immediately, a cached state is served right away when available, and a fresh fetch is
// issued. An empty threadID simply clears the view (an unsaved draft chat has no history).
func (s *Synchronizer) SetThread(ctx context.Context, threadID string) {
	s.mu.Lock()
	s.threadID = threadID
	s.view = nil
	if threadID != "" && s.cache != nil {
		if cached, err := s.cache.State(ctx, threadID); err == nil && cached != nil {
			s.view = viewOf(threadID, *cached, true)
		}
	}
	view := s.viewLocked()
	s.mu.Unlock()

	s.onUpdate(view)
	if threadID != "" {
		s.Refresh(ctx)
	}
}

// Refresh issues a fetch for the currently selected thread. The call returns immediately; the
// result is applied asynchronously under the generation guard.
func (s *Synchronizer) Refresh(ctx context.Context) {
	s.mu.Lock()
	threadID := s.threadID
	if threadID == "" {
		s.mu.Unlock()
		return
	}
	s.issued++
	gen := s.issued
	s.mu.Unlock()

	go s.fetch(ctx, threadID, gen)
}

// ObserveStream reacts to stream session changes: when a session for the selected thread
// leaves inflight, the server's persisted state has become authoritative and is refetched.
func (s *Synchronizer) ObserveStream(ctx context.Context, snap stream.Snapshot) {
	if snap.Status != stream.StatusDone && snap.Status != stream.StatusError {
		return
	}

	s.mu.Lock()
	match := snap.ThreadID == s.threadID
	s.mu.Unlock()

	if match {
		s.Refresh(ctx)
	}
}

// View returns the current view, or nil when none has resolved yet.
func (s *Synchronizer) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Synchronizer) viewLocked() *View {
	if s.view == nil {
		return nil
	}
	v := *s.view
	v.Messages = slices.Clone(s.view.Messages)
	return &v
}

func (s *Synchronizer) fetch(ctx context.Context, threadID string, gen uint64) {
	state, err := s.fetcher.ThreadState(ctx, threadID)

	s.mu.Lock()
	if threadID != s.threadID || gen <= s.applied {
		s.mu.Unlock()
		s.logger.Debug("Dropping stale history fetch",
			slog.String("threadID", threadID),
			slog.Uint64("generation", gen))
		return
	}
	s.applied = gen

	switch {
	case err != nil:
		// A failed fetch and a missing thread are indistinguishable here; both leave the
		// last known view in place, falling back to cache when nothing is displayed yet.
		s.logger.Error("Failed to fetch thread state",
			slog.String("threadID", threadID),
			slog.String("err", err.Error()))
		if s.view == nil && s.cache != nil {
			if cached, cerr := s.cache.State(ctx, threadID); cerr == nil && cached != nil {
				s.view = viewOf(threadID, *cached, true)
			}
		}
	case state == nil:
		s.view = nil
	default:
		s.view = viewOf(threadID, *state, false)
	}
	view := s.viewLocked()
	cache := s.cache
	s.mu.Unlock()

	if err == nil && state != nil && cache != nil {
		if cerr := cache.PutState(ctx, threadID, *state); cerr != nil {
			s.logger.Error("Failed to cache thread state",
				slog.String("threadID", threadID),
				slog.String("err", cerr.Error()))
		}
	}

	s.onUpdate(view)
}

func viewOf(threadID string, state models.ThreadState, fromCache bool) *View {
	return &View{
		ThreadID:  threadID,
		Messages:  state.Messages,
		Next:      state.Next,
		Config:    state.Config,
		FromCache: fromCache,
	}
}
