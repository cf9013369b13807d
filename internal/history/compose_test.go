package history_test

import (
	"testing"

	"github.com/langchain-ai/opengpts-go/internal/history"
	"github.com/langchain-ai/opengpts-go/internal/models"
	"github.com/langchain-ai/opengpts-go/internal/stream"
)

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestCompose(t *testing.T) {
	view := &history.View{
		ThreadID: "t1",
		Messages: []models.Message{msg("h1", "hi"), msg("a1", "Hello")},
	}
	inflight := &stream.Snapshot{
		ThreadID: "t1",
		Status:   stream.StatusInflight,
		Messages: []models.Message{msg("h1", "hi"), msg("a1", "Hello"), msg("a2", "more")},
	}
	done := &stream.Snapshot{
		ThreadID: "t1",
		Status:   stream.StatusDone,
		Messages: []models.Message{msg("h1", "hi"), msg("a2", "full turn")},
	}

	tests := []struct {
		name    string
		view    *history.View
		snap    *stream.Snapshot
		merge   bool
		wantIDs []string
	}{
		{
			name:    "no session shows history alone",
			view:    view,
			wantIDs: []string{"h1", "a1"},
		},
		{
			name: "nothing at all",
		},
		{
			name:    "inflight session unions history with stream-only ids",
			view:    view,
			snap:    inflight,
			wantIDs: []string{"h1", "a1", "a2"},
		},
		{
			name:    "inflight session without history shows stream",
			snap:    inflight,
			wantIDs: []string{"h1", "a1", "a2"},
		},
		{
			name:    "finished session shown exclusively",
			view:    view,
			snap:    done,
			wantIDs: []string{"h1", "a2"},
		},
		{
			name:    "merge flag forces the union after the turn ends",
			view:    view,
			snap:    done,
			merge:   true,
			wantIDs: []string{"h1", "a1", "a2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := history.Compose(tt.view, tt.snap, tt.merge)

			gotIDs := ids(got)
			if len(gotIDs) != len(tt.wantIDs) {
				t.Fatalf("Compose() ids = %v, want %v", gotIDs, tt.wantIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.wantIDs[i] {
					t.Errorf("Compose() ids = %v, want %v", gotIDs, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestComposeHistoryWinsOnSharedIDsDuringMerge(t *testing.T) {
	view := &history.View{
		ThreadID: "t1",
		Messages: []models.Message{msg("a1", "persisted")},
	}
	snap := &stream.Snapshot{
		ThreadID: "t1",
		Status:   stream.StatusInflight,
		Messages: []models.Message{msg("a1", "streamed")},
	}

	got := history.Compose(view, snap, false)
	if len(got) != 1 || got[0].Content.Text != "persisted" {
		t.Errorf("Compose() = %v, want history's copy of a1", got)
	}
}
