package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/langchain-ai/opengpts-go/internal/conversation"
	"github.com/langchain-ai/opengpts-go/internal/export"
	"github.com/langchain-ai/opengpts-go/internal/models"
	"github.com/langchain-ai/opengpts-go/internal/services"
	"github.com/langchain-ai/opengpts-go/internal/stream"
)

func main() {
	// A missing .env is fine; the API key may come from the environment directly.
	_ = godotenv.Load()

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "opengpts")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfg, err := loadConfig(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	client := services.NewClient(cfg.ServerURL, os.Getenv("OPENGPTS_API_KEY"), cfg.UserID, logger)

	cachePath := cfg.CachePath
	if cachePath == "" {
		cachePath = filepath.Join(cfgPath, "cache.db")
	}
	cache, err := services.NewBoltCache(cachePath)
	if err != nil {
		log.Fatal(err)
	}
	defer cache.Close()

	updates := make(chan struct{}, 1)
	ctrl := conversation.New(client, cache, cache, logger, func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	if cfg.AssistantID != "" {
		ctrl.SetAssistant(cfg.AssistantID)
	}
	ctrl.SetMergeView(cfg.MergeView)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	repl(ctrl, cfg, interrupt, updates)
}

func repl(ctrl *conversation.Controller, cfg config, interrupt chan os.Signal, updates chan struct{}) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Connected to", cfg.ServerURL, "- /help for commands")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if ctrl.ThreadID() == "" {
				fmt.Println("no thread selected; use /new <name> or /open <id>")
				continue
			}
			if err := ctrl.Send(ctx, line); err != nil {
				fmt.Println("error:", err)
				continue
			}
			followTurn(ctrl, interrupt, updates)
			continue
		}

		cmd, arg, _ := strings.Cut(line[1:], " ")
		if handleCommand(ctx, ctrl, cmd, strings.TrimSpace(arg)) {
			return
		}
	}
}

// handleCommand runs one slash command and reports whether the REPL should exit.
func handleCommand(ctx context.Context, ctrl *conversation.Controller, cmd, arg string) bool {
	switch cmd {
	case "quit", "q":
		ctrl.Stop(true)
		return true
	case "help":
		printHelp()
	case "threads":
		threads, err := ctrl.Threads(ctx)
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		for _, t := range threads {
			fmt.Printf("%s  %s\n", t.ID, t.Name)
		}
	case "assistants":
		assistants, err := ctrl.Assistants(ctx)
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		for _, a := range assistants {
			fmt.Printf("%s  %s\n", a.ID, a.Name)
		}
	case "use":
		ctrl.SetAssistant(arg)
	case "new":
		thread, err := ctrl.NewThread(ctx, arg)
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Println("thread", thread.ID)
	case "open":
		ctrl.SetThread(ctx, arg)
	case "stop":
		ctrl.Stop(false)
	case "history":
		printTimeline(ctrl.Messages())
	case "edit":
		id, text, ok := strings.Cut(arg, " ")
		if !ok {
			fmt.Println("usage: /edit <message-id> <new text>")
			break
		}
		draft, found := findMessage(ctrl.Messages(), id)
		if !found {
			fmt.Println("no such message:", id)
			break
		}
		draft.Content = models.Text(text)
		ctrl.RecordEdit(draft)
	case "abandon":
		if arg == "" {
			ctrl.AbandonAllEdits()
		} else {
			ctrl.AbandonEdit(arg)
		}
	case "commit":
		if err := ctrl.Commit(ctx); err != nil {
			fmt.Println("commit failed, drafts kept:", err)
		}
	case "feedback":
		score, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			fmt.Println("usage: /feedback <score>")
			break
		}
		ctrl.SendFeedback(ctx, score)
	case "example":
		ctrl.MarkExample(ctx, arg != "off")
	case "export":
		if arg == "" {
			fmt.Println("usage: /export <file.html>")
			break
		}
		page, err := export.HTML(ctrl.ThreadID(), ctrl.Messages())
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		if err := os.WriteFile(arg, []byte(page), 0644); err != nil {
			fmt.Println("error:", err)
			break
		}
		fmt.Println("wrote", arg)
	default:
		fmt.Println("unknown command; /help for commands")
	}
	return false
}

// followTurn prints the assistant's output as it accumulates, until the turn reaches a
// terminal state. Ctrl-C stops generation but keeps the partial answer visible.
func followTurn(ctrl *conversation.Controller, interrupt chan os.Signal, updates chan struct{}) {
	printed := 0
	for {
		render(ctrl, &printed)

		status := ctrl.Status()
		if status != stream.StatusInflight {
			fmt.Println()
			if status == stream.StatusError {
				fmt.Println("[an error occurred; partial output shown]")
			}
			return
		}

		select {
		case <-interrupt:
			ctrl.Stop(false)
		case <-updates:
		}
	}
}

func render(ctrl *conversation.Controller, printed *int) {
	messages := ctrl.Messages()
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Type != models.RoleAI {
		return
	}
	text := last.Content.Plain()
	if len(text) > *printed {
		fmt.Print(text[*printed:])
		*printed = len(text)
	}
}

func printTimeline(messages []models.Message) {
	for _, msg := range messages {
		fmt.Printf("[%s] %s: %s\n", msg.ID, msg.Type, msg.Content.Plain())
	}
}

func findMessage(messages []models.Message, id string) (models.Message, bool) {
	for _, msg := range messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return models.Message{}, false
}

func printHelp() {
	fmt.Print(`commands:
  /threads              list threads
  /new <name>           create a thread and switch to it
  /open <id>            switch to a thread
  /assistants           list assistants
  /use <id>             select the assistant for new turns
  /history              print the current timeline
  /stop                 stop generating, keep partial output
  /edit <id> <text>     stage a rewrite of a message
  /abandon [id]         drop one draft, or all drafts
  /commit               write all drafts atomically
  /feedback <score>     score the last run
  /example [off]        mark this thread as a few-shot example
  /export <file.html>   export the timeline as HTML
  /quit                 exit
`)
}
