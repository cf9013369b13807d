package stream_test

import (
	"testing"

	"github.com/langchain-ai/opengpts-go/internal/models"
	"github.com/langchain-ai/opengpts-go/internal/stream"
)

func msg(id, text string) models.Message {
	return models.Message{ID: id, Type: models.RoleAI, Content: models.Text(text)}
}

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		existing []models.Message
		incoming []models.Message
		wantIDs  []string
	}{
		{
			name:     "append to empty",
			incoming: []models.Message{msg("a1", "He")},
			wantIDs:  []string{"a1"},
		},
		{
			name:     "append new id",
			existing: []models.Message{msg("h1", "hi")},
			incoming: []models.Message{msg("a1", "He")},
			wantIDs:  []string{"h1", "a1"},
		},
		{
			name:     "replace in place",
			existing: []models.Message{msg("h1", "hi"), msg("a1", "He")},
			incoming: []models.Message{msg("a1", "Hello")},
			wantIDs:  []string{"h1", "a1"},
		},
		{
			name:     "duplicate ids within one batch collapse",
			existing: nil,
			incoming: []models.Message{msg("a1", "He"), msg("a1", "Hello")},
			wantIDs:  []string{"a1"},
		},
		{
			name:     "later delta mentioning ids in reverse keeps first-seen order",
			existing: []models.Message{msg("a1", "x"), msg("h1", "y")},
			incoming: []models.Message{msg("h1", "y2"), msg("a1", "x2")},
			wantIDs:  []string{"a1", "h1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stream.Merge(tt.existing, tt.incoming)

			gotIDs := ids(got)
			if len(gotIDs) != len(tt.wantIDs) {
				t.Fatalf("Merge() ids = %v, want %v", gotIDs, tt.wantIDs)
			}
			for i := range gotIDs {
				if gotIDs[i] != tt.wantIDs[i] {
					t.Errorf("Merge() ids = %v, want %v", gotIDs, tt.wantIDs)
					break
				}
			}
		})
	}
}

func TestMergeReplacesContent(t *testing.T) {
	existing := []models.Message{msg("h1", "hi"), msg("a1", "He")}
	got := stream.Merge(existing, []models.Message{msg("a1", "Hello")})

	if len(got) != 2 {
		t.Fatalf("Merge() length = %d, want 2", len(got))
	}
	if got[1].Content.Text != "Hello" {
		t.Errorf("Merge() content = %q, want %q", got[1].Content.Text, "Hello")
	}
	// Input must not be mutated.
	if existing[1].Content.Text != "He" {
		t.Errorf("Merge() mutated input: %q", existing[1].Content.Text)
	}
}

func TestMergeIdempotent(t *testing.T) {
	existing := []models.Message{msg("h1", "hi")}
	delta := []models.Message{msg("a1", "Hello"), msg("h1", "hi")}

	once := stream.Merge(existing, delta)
	twice := stream.Merge(once, delta)

	if len(once) != len(twice) {
		t.Fatalf("re-merge changed length: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID || once[i].Content.Text != twice[i].Content.Text {
			t.Errorf("re-merge changed entry %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestMergeNeverRemoves(t *testing.T) {
	timeline := []models.Message{msg("h1", "hi"), msg("a1", "Hello"), msg("t1", "result")}
	got := stream.Merge(timeline, []models.Message{msg("a1", "Hello again")})

	if len(got) != 3 {
		t.Fatalf("Merge() removed an id: %v", ids(got))
	}
}
