package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmaxmax/go-sse"

	"github.com/langchain-ai/opengpts-go/internal/models"
)

// Client talks to an OpenGPTs-style conversational-agent service. It covers the streaming run
// feed, thread state reads and writes, thread and assistant CRUD, and best-effort feedback
// submission.
type Client struct {
	baseURL string
	apiKey  string
	userID  string

	client *http.Client

	logger *slog.Logger
}

// userCookie identifies the requesting user to the service.
const userCookie = "opengpts_user_id"

// NewClient creates a new Client for the service at baseURL. apiKey may be empty for
// unauthenticated deployments; userID scopes thread and assistant listings.
func NewClient(baseURL, apiKey, userID string, logger *slog.Logger) Client {
	return Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		userID:  userID,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "client")),
	}
}

// Stream opens the streaming feed for one turn, posting {input, thread_id, ...extra} and
// decoding the named events the feed carries: "data" (JSON array of messages), "metadata"
// ({run_id}), "error", and "end". A clean close, or an explicit "end" event, terminates the
// sequence without error. Malformed event payloads are logged and dropped. Cancelling ctx
// tears the subscription down silently.
func (c Client) Stream(ctx context.Context, input any, threadID string, extra map[string]any) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		body := map[string]any{
			"input":     input,
			"thread_id": threadID,
		}
		for k, v := range extra {
			body[k] = v
		}

		jsonBody, err := json.Marshal(body)
		if err != nil {
			yield(models.StreamEvent{}, fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := c.newRequest(ctx, http.MethodPost, "/runs/stream", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield(models.StreamEvent{}, err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield(models.StreamEvent{}, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(models.StreamEvent{}, fmt.Errorf("unexpected status %d opening stream", resp.StatusCode))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				yield(models.StreamEvent{}, fmt.Errorf("error reading stream: %w", err))
				return
			}

			switch ev.Type {
			case "data":
				var messages []models.Message
				if err := json.Unmarshal([]byte(ev.Data), &messages); err != nil {
					c.logger.Error("Dropping malformed data event",
						slog.String("err", err.Error()))
					continue
				}
				if !yield(models.StreamEvent{Kind: models.StreamEventData, Messages: messages}, nil) {
					return
				}
			case "metadata":
				var meta struct {
					RunID string `json:"run_id"`
				}
				if err := json.Unmarshal([]byte(ev.Data), &meta); err != nil {
					c.logger.Error("Dropping malformed metadata event",
						slog.String("err", err.Error()))
					continue
				}
				if !yield(models.StreamEvent{Kind: models.StreamEventMetadata, RunID: meta.RunID}, nil) {
					return
				}
			case "error":
				yield(models.StreamEvent{Kind: models.StreamEventError, Detail: ev.Data}, nil)
				return
			case "end":
				return
			default:
				continue
			}
		}
	}
}

// threadStateWire is the shape the service uses for thread state payloads.
type threadStateWire struct {
	Values []models.Message `json:"values"`
	Next   []string         `json:"next,omitempty"`
	Config json.RawMessage  `json:"config,omitempty"`
}

// ThreadState reads the canonical persisted state for a thread: its message list, pending
// continuation markers, and the config snapshot in effect.
func (c Client) ThreadState(ctx context.Context, threadID string) (*models.ThreadState, error) {
	var wire threadStateWire
	if err := c.getJSON(ctx, "/threads/"+threadID+"/state", &wire); err != nil {
		return nil, fmt.Errorf("fetch thread state: %w", err)
	}
	return &models.ThreadState{
		Messages: wire.Values,
		Next:     wire.Next,
		Config:   wire.Config,
	}, nil
}

// UpdateThreadState writes the full message list for a thread as one atomic operation. The
// service has no partial-success contract: the write either lands whole or not at all.
func (c Client) UpdateThreadState(ctx context.Context, threadID string, messages []models.Message) error {
	if err := c.postJSON(ctx, "/threads/"+threadID+"/state", threadStateWire{Values: messages}, nil); err != nil {
		return fmt.Errorf("update thread state: %w", err)
	}
	return nil
}

// Threads lists the user's threads.
func (c Client) Threads(ctx context.Context) ([]models.Thread, error) {
	var threads []models.Thread
	if err := c.getJSON(ctx, "/threads/", &threads); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

// CreateThread creates a thread bound to an assistant and returns it.
func (c Client) CreateThread(ctx context.Context, name, assistantID string) (*models.Thread, error) {
	body := map[string]string{"name": name, "assistant_id": assistantID}
	var thread models.Thread
	if err := c.postJSON(ctx, "/threads/", body, &thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &thread, nil
}

// Assistants lists the assistant configurations visible to the user.
func (c Client) Assistants(ctx context.Context) ([]models.Assistant, error) {
	var assistants []models.Assistant
	if err := c.getJSON(ctx, "/assistants/", &assistants); err != nil {
		return nil, fmt.Errorf("list assistants: %w", err)
	}
	return assistants, nil
}

// PutAssistant creates or replaces an assistant configuration.
func (c Client) PutAssistant(ctx context.Context, assistant models.Assistant) (*models.Assistant, error) {
	var saved models.Assistant
	err := c.doJSON(ctx, http.MethodPut, "/assistants/"+assistant.ID, assistant, &saved)
	if err != nil {
		return nil, fmt.Errorf("put assistant: %w", err)
	}
	return &saved, nil
}

func (c Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userID != "" {
		req.AddCookie(&http.Cookie{Name: userCookie, Value: c.userID})
	}
	return req, nil
}

func (c Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		jsonBody, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewBuffer(jsonBody)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// ErrNotFound reports that the requested thread or assistant does not exist on the server.
var ErrNotFound = errors.New("not found")
