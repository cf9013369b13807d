package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

// Status is the lifecycle state of one conversation turn.
type Status string

const (
	// StatusIdle means no turn has been started yet.
	StatusIdle Status = "idle"
	// StatusInflight means the turn's subscription is open and producing output.
	StatusInflight Status = "inflight"
	// StatusDone means the turn finished cleanly or was stopped by the user.
	StatusDone Status = "done"
	// StatusError means the turn failed; partial output is retained.
	StatusError Status = "error"
)

// ErrTurnInflight is returned by Manager.Start when a turn is already running for the thread.
// Callers must stop the previous turn first; starting over one silently would hide lifecycle
// bugs in the caller.
var ErrTurnInflight = errors.New("a turn is already inflight for this thread")

// Streamer opens one streaming subscription carrying the turn's input and returns the decoded
// event sequence. The sequence ends when the feed closes; cancelling ctx tears the
// subscription down without yielding an error.
type Streamer interface {
	Stream(ctx context.Context, input any, threadID string, extra map[string]any) iter.Seq2[models.StreamEvent, error]
}

// Snapshot is a point-in-time copy of a session's observable state.
type Snapshot struct {
	ThreadID string
	Status   Status
	Messages []models.Message
	RunID    string
}

// Session owns the subscription for a single turn: it applies each incoming data batch to its
// message buffer via Merge, records the run id when the server assigns one, and drives the
// idle -> inflight -> {done, error} state machine. The session is the only component permitted
// to cancel its own subscription.
type Session struct {
	threadID string
	logger   *slog.Logger
	notify   func(Snapshot)

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	status   Status
	messages []models.Message
	runID    string
}

// Manager enforces the at-most-one-active-subscription-per-thread invariant and keeps track of
// the most recent session per thread so observers can read partial output after a turn ends.
type Manager struct {
	transport Streamer
	logger    *slog.Logger
	notify    func(Snapshot)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager on top of the given transport. notify, when non-nil, is
// invoked after every observable session change with a fresh snapshot; it must not block.
func NewManager(transport Streamer, logger *slog.Logger, notify func(Snapshot)) *Manager {
	if notify == nil {
		notify = func(Snapshot) {}
	}
	return &Manager{
		transport: transport,
		logger:    logger.With(slog.String("module", "stream")),
		notify:    notify,
		sessions:  make(map[string]*Session),
	}
}

// Start opens a turn for threadID. input may be a []models.Message (seeded into the buffer so
// the user's own message is visible before any server round trip), any other structured input,
// or nil. extra is spread into the subscription request body alongside input and thread_id.
//
// Starting while a turn is inflight for the same thread returns ErrTurnInflight; it is the
// caller's contract to stop the previous turn first.
func (m *Manager) Start(ctx context.Context, input any, threadID string, extra map[string]any) (*Session, error) {
	m.mu.Lock()
	if prev, ok := m.sessions[threadID]; ok && prev.Status() == StatusInflight {
		m.mu.Unlock()
		return nil, fmt.Errorf("start turn for thread %s: %w", threadID, ErrTurnInflight)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		threadID: threadID,
		logger:   m.logger,
		notify:   m.notify,
		cancel:   cancel,
		done:     make(chan struct{}),
		status:   StatusInflight,
	}
	if seed, ok := input.([]models.Message); ok {
		s.messages = slices.Clone(seed)
	}
	m.sessions[threadID] = s
	m.mu.Unlock()

	m.notify(s.Snapshot())

	go s.run(m.transport.Stream(streamCtx, input, threadID, extra))

	return s, nil
}

// Session returns the most recent session for threadID, or nil if none was started.
func (m *Manager) Session(threadID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[threadID]
}

// Drop stops threadID's session with clear semantics and forgets it. Used when the thread's
// view is being torn down entirely.
func (m *Manager) Drop(threadID string) {
	m.mu.Lock()
	s, ok := m.sessions[threadID]
	delete(m.sessions, threadID)
	m.mu.Unlock()
	if ok {
		s.Stop(true)
	}
}

func (s *Session) run(seq iter.Seq2[models.StreamEvent, error]) {
	defer close(s.done)

	for ev, err := range seq {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.fail(fmt.Errorf("transport: %w", err))
			break
		}

		if ev.Kind == models.StreamEventError {
			// Application-level failure: terminate the subscription loop instead of
			// waiting for the feed to close. finish below keeps the error sticky.
			detail := ev.Detail
			if detail == "" {
				detail = "stream error event"
			}
			s.fail(errors.New(detail))
			break
		}

		switch ev.Kind {
		case models.StreamEventData:
			s.applyData(ev.Messages)
		case models.StreamEventMetadata:
			s.setRunID(ev.RunID)
		}
	}

	s.finish()
}

// Stop cancels the subscription unconditionally and waits for it to be fully released before
// returning. The session ends in StatusDone. With clear=true the message buffer is discarded
// (view teardown); with clear=false the partial output stays visible (user-initiated "stop
// generating"). The run id survives either way.
func (s *Session) Stop(clear bool) {
	s.cancel()
	<-s.done

	s.mu.Lock()
	s.status = StatusDone
	if clear {
		s.messages = nil
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Wait blocks until the session's subscription has been released.
func (s *Session) Wait() {
	<-s.done
}

// ThreadID returns the thread this session's turn belongs to.
func (s *Session) ThreadID() string { return s.threadID }

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RunID returns the run id assigned by the server, or "" before the metadata event arrives.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Messages returns a copy of the session's message buffer.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Snapshot returns a point-in-time copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ThreadID: s.threadID,
		Status:   s.status,
		Messages: slices.Clone(s.messages),
		RunID:    s.runID,
	}
}

func (s *Session) applyData(incoming []models.Message) {
	s.mu.Lock()
	s.messages = Merge(s.messages, incoming)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) setRunID(runID string) {
	s.mu.Lock()
	s.runID = runID
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) fail(err error) {
	s.logger.Error("Turn failed",
		slog.String("threadID", s.threadID),
		slog.String("err", err.Error()))

	s.mu.Lock()
	s.status = StatusError
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// finish marks a clean end of feed. Error is sticky: a close after a failure must not
// downgrade the status back to done.
func (s *Session) finish() {
	s.mu.Lock()
	if s.status != StatusError {
		s.status = StatusDone
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}
