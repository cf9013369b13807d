package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message represents an individual entry in a conversation timeline. Its ID is stable for the
// lifetime of the timeline: the server assigns ids for generated messages, while the client
// assigns ids for human turns before they are first sent. Once an id has entered a timeline it
// is never removed, only replaced in place with newer content.
type Message struct {
	ID        string     `json:"id"`
	Type      Role       `json:"type"`
	Content   Content    `json:"content"`
	Name      string     `json:"name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// AdditionalKwargs is an open bag carried verbatim from the server. It holds, among other
	// things, a pending function-call descriptor while the server is still deciding on a tool.
	AdditionalKwargs map[string]json.RawMessage `json:"additional_kwargs,omitempty"`
}

// ToolCall describes a single tool invocation requested by a generated message.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Role represents the role of a message participant.
type Role string

// ContentKind represents the shape of a message's content payload.
type ContentKind string

const (
	// RoleHuman represents a message typed by the user.
	RoleHuman Role = "human"
	// RoleAI represents a message generated by the assistant.
	RoleAI Role = "ai"
	// RoleTool represents the result of a tool invocation.
	RoleTool Role = "tool"
	// RoleFunction represents the result of a legacy function invocation.
	RoleFunction Role = "function"
	// RoleSystem represents a system instruction.
	RoleSystem Role = "system"

	// ContentKindText represents plain text content.
	ContentKindText ContentKind = "text"
	// ContentKindBlocks represents a structured list of content blocks.
	ContentKindBlocks ContentKind = "blocks"
	// ContentKindRaw represents an arbitrary object payload.
	ContentKindRaw ContentKind = "raw"
)

// Content is the polymorphic payload of a Message. On the wire it is either a JSON string, a
// JSON array of blocks, or an arbitrary JSON object; the tagged form lets callers switch on
// Kind instead of re-inspecting raw JSON.
type Content struct {
	Kind ContentKind

	// Text would be filled if Kind is ContentKindText.
	Text string
	// Blocks would be filled if Kind is ContentKindBlocks.
	Blocks []json.RawMessage
	// Raw would be filled if Kind is ContentKindRaw.
	Raw json.RawMessage
}

// Text returns a plain text Content.
func Text(s string) Content {
	return Content{Kind: ContentKindText, Text: s}
}

// UnmarshalJSON decodes the wire form of a content payload into its tagged variant. A JSON
// null decodes as empty text.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		*c = Content{Kind: ContentKindText}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Kind: ContentKindText, Text: s}
	case '[':
		var blocks []json.RawMessage
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		*c = Content{Kind: ContentKindBlocks, Blocks: blocks}
	case 'n':
		*c = Content{Kind: ContentKindText}
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		*c = Content{Kind: ContentKindRaw, Raw: raw}
	}
	return nil
}

// MarshalJSON encodes the tagged variant back into its wire form.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentKindBlocks:
		return json.Marshal(c.Blocks)
	case ContentKindRaw:
		if len(c.Raw) == 0 {
			return []byte("null"), nil
		}
		return c.Raw, nil
	default:
		return json.Marshal(c.Text)
	}
}

// Plain renders the content as display text. Structured blocks render as their text field when
// they carry one, otherwise as compact JSON; raw objects render as compact JSON.
func (c Content) Plain() string {
	switch c.Kind {
	case ContentKindText:
		return c.Text
	case ContentKindBlocks:
		var sb strings.Builder
		for i, block := range c.Blocks {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(blockText(block))
		}
		return sb.String()
	case ContentKindRaw:
		return string(c.Raw)
	}
	return ""
}

func blockText(block json.RawMessage) string {
	var s string
	if err := json.Unmarshal(block, &s); err == nil {
		return s
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(block, &obj); err == nil && obj.Text != "" {
		return obj.Text
	}
	return string(block)
}
