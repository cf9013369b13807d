package edit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/langchain-ai/opengpts-go/internal/edit"
	"github.com/langchain-ai/opengpts-go/internal/models"
)

type mockCommitter struct {
	err    error
	calls  int
	thread string
	wrote  []models.Message
}

func (m *mockCommitter) UpdateThreadState(_ context.Context, threadID string, messages []models.Message) error {
	m.calls++
	m.thread = threadID
	m.wrote = messages
	return m.err
}

func draft(id, text string) models.Message {
	return models.Message{ID: id, Type: models.RoleHuman, Content: models.Text(text)}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCommitIsAtomic(t *testing.T) {
	committer := &mockCommitter{}
	var resynced string
	b := edit.NewBuffer(committer, testLogger(), func(threadID string) { resynced = threadID })

	b.RecordEdit(draft("m1", "draft1"))
	b.RecordEdit(draft("m2", "draft2"))

	if err := b.Commit(context.Background(), "t1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if committer.calls != 1 {
		t.Errorf("writes = %d, want exactly 1", committer.calls)
	}
	if committer.thread != "t1" {
		t.Errorf("thread = %q, want t1", committer.thread)
	}
	if len(committer.wrote) != 2 || committer.wrote[0].ID != "m1" || committer.wrote[1].ID != "m2" {
		t.Errorf("wrote = %v, want [m1 m2] in staging order", committer.wrote)
	}
	if b.Len() != 0 {
		t.Errorf("buffer not cleared after commit: %d drafts", b.Len())
	}
	if resynced != "t1" {
		t.Errorf("resync callback got %q, want t1", resynced)
	}
}

func TestCommitFailureKeepsBuffer(t *testing.T) {
	committer := &mockCommitter{err: errors.New("write failed")}
	resynced := false
	b := edit.NewBuffer(committer, testLogger(), func(string) { resynced = true })

	b.RecordEdit(draft("m1", "draft1"))
	b.RecordEdit(draft("m2", "draft2"))

	if err := b.Commit(context.Background(), "t1"); err == nil {
		t.Fatal("Commit() error = nil, want failure")
	}

	if b.Len() != 2 {
		t.Errorf("buffer = %d drafts after failed commit, want 2", b.Len())
	}
	if d, ok := b.Draft("m1"); !ok || d.Content.Text != "draft1" {
		t.Errorf("draft m1 = %+v, want untouched", d)
	}
	if resynced {
		t.Error("resync callback ran on failure")
	}
}

func TestCommitRequiresThread(t *testing.T) {
	committer := &mockCommitter{}
	b := edit.NewBuffer(committer, testLogger(), nil)
	b.RecordEdit(draft("m1", "draft1"))

	if err := b.Commit(context.Background(), ""); !errors.Is(err, edit.ErrNoThread) {
		t.Errorf("Commit() error = %v, want ErrNoThread", err)
	}
	if committer.calls != 0 {
		t.Errorf("writes = %d, want none", committer.calls)
	}
}

func TestCommitEmptyBufferIsNoop(t *testing.T) {
	committer := &mockCommitter{}
	b := edit.NewBuffer(committer, testLogger(), nil)

	if err := b.Commit(context.Background(), "t1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if committer.calls != 0 {
		t.Errorf("writes = %d, want none", committer.calls)
	}
}

func TestRecordEditReplacesDraft(t *testing.T) {
	b := edit.NewBuffer(&mockCommitter{}, testLogger(), nil)

	b.RecordEdit(draft("m1", "first"))
	b.RecordEdit(draft("m2", "other"))
	b.RecordEdit(draft("m1", "second"))

	drafts := b.Drafts()
	if len(drafts) != 2 {
		t.Fatalf("drafts = %d, want 2", len(drafts))
	}
	// Re-recording keeps the original staging position.
	if drafts[0].ID != "m1" || drafts[0].Content.Text != "second" {
		t.Errorf("drafts[0] = %+v, want updated m1 first", drafts[0])
	}
}

func TestAbandon(t *testing.T) {
	b := edit.NewBuffer(&mockCommitter{}, testLogger(), nil)
	b.RecordEdit(draft("m1", "one"))
	b.RecordEdit(draft("m2", "two"))

	b.AbandonEdit("m1")
	if _, ok := b.Draft("m1"); ok {
		t.Error("m1 still staged after AbandonEdit")
	}
	if _, ok := b.Draft("m2"); !ok {
		t.Error("m2 dropped by AbandonEdit of m1")
	}

	b.AbandonAll()
	if b.Len() != 0 {
		t.Errorf("buffer = %d drafts after AbandonAll, want 0", b.Len())
	}
}

func TestShadow(t *testing.T) {
	b := edit.NewBuffer(&mockCommitter{}, testLogger(), nil)
	b.RecordEdit(draft("m2", "edited"))

	timeline := []models.Message{draft("m1", "original one"), draft("m2", "original two")}
	got := b.Shadow(timeline)

	if got[0].Content.Text != "original one" {
		t.Errorf("unedited message changed: %+v", got[0])
	}
	if got[1].Content.Text != "edited" {
		t.Errorf("draft not shadowed: %+v", got[1])
	}
	if timeline[1].Content.Text != "original two" {
		t.Error("Shadow mutated its input")
	}
}
