// Package export renders a conversation timeline to a standalone HTML page.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	highlighting "github.com/yuin/goldmark-highlighting"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
)

var roleLabels = map[models.Role]string{
	models.RoleHuman:    "You",
	models.RoleAI:       "Assistant",
	models.RoleTool:     "Tool",
	models.RoleFunction: "Function",
	models.RoleSystem:   "System",
}

// Transcript renders messages as a markdown document, one section per message. Tool calls and
// their arguments are rendered as fenced JSON blocks.
func Transcript(title string, messages []models.Message) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))

	for _, msg := range messages {
		label, ok := roleLabels[msg.Type]
		if !ok {
			label = string(msg.Type)
		}
		if msg.Name != "" {
			label = fmt.Sprintf("%s (%s)", label, msg.Name)
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", label))

		if text := msg.Content.Plain(); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}

		for _, call := range msg.ToolCalls {
			sb.WriteString(fmt.Sprintf("Calling Tool: %s  \n", call.Name))
			sb.WriteString("Input:  \n")

			var prettyJSON bytes.Buffer
			args := string(call.Args)
			if err := json.Indent(&prettyJSON, call.Args, "", "  "); err == nil {
				args = prettyJSON.String()
			}

			sb.WriteString(fmt.Sprintf("```json\n%s\n```\n\n", args))
		}
	}
	return sb.String()
}

// HTML converts the transcript of messages to a standalone HTML page with syntax-highlighted
// code blocks.
func HTML(title string, messages []models.Message) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Transcript(title, messages)), &body); err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", html.EscapeString(title)))
	sb.WriteString("<meta charset=\"utf-8\">\n</head>\n<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("</body>\n</html>\n")
	return sb.String(), nil
}
