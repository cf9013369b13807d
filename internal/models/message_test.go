package models_test

import (
	"encoding/json"
	"testing"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

func TestContentUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantKind models.ContentKind
		wantText string
	}{
		{
			name:     "string content",
			json:     `{"id":"m1","type":"ai","content":"Hello"}`,
			wantKind: models.ContentKindText,
			wantText: "Hello",
		},
		{
			name:     "null content",
			json:     `{"id":"m1","type":"ai","content":null}`,
			wantKind: models.ContentKindText,
			wantText: "",
		},
		{
			name:     "block list content",
			json:     `{"id":"m1","type":"ai","content":[{"type":"text","text":"part one"},"part two"]}`,
			wantKind: models.ContentKindBlocks,
			wantText: "part one\npart two",
		},
		{
			name:     "arbitrary object content",
			json:     `{"id":"m1","type":"ai","content":{"answer":42}}`,
			wantKind: models.ContentKindRaw,
			wantText: `{"answer":42}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg models.Message
			if err := json.Unmarshal([]byte(tt.json), &msg); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if msg.Content.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", msg.Content.Kind, tt.wantKind)
			}
			if got := msg.Content.Plain(); got != tt.wantText {
				t.Errorf("Plain() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestContentMarshalRoundTrip(t *testing.T) {
	original := `{"id":"m1","type":"ai","content":[{"type":"text","text":"hi"}],"tool_calls":[{"id":"c1","name":"search","args":{"q":"weather"}}]}`

	var msg models.Message
	if err := json.Unmarshal([]byte(original), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var again models.Message
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("re-Unmarshal() error = %v", err)
	}
	if again.Content.Kind != models.ContentKindBlocks || len(again.Content.Blocks) != 1 {
		t.Errorf("content did not survive round trip: %+v", again.Content)
	}
	if len(again.ToolCalls) != 1 || again.ToolCalls[0].Name != "search" {
		t.Errorf("tool calls did not survive round trip: %+v", again.ToolCalls)
	}
}

func TestAdditionalKwargsCarriedVerbatim(t *testing.T) {
	raw := `{"id":"m1","type":"ai","content":"","additional_kwargs":{"function_call":{"name":"lookup"}}}`

	var msg models.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	call, ok := msg.AdditionalKwargs["function_call"]
	if !ok {
		t.Fatal("function_call missing from additional_kwargs")
	}
	var fn struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(call, &fn); err != nil || fn.Name != "lookup" {
		t.Errorf("function_call = %s", call)
	}
}
