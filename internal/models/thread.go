package models

import (
	"encoding/json"
	"time"
)

// Thread represents a persisted conversation container on the server.
type Thread struct {
	ID        string          `json:"thread_id"`
	Name      string          `json:"name"`
	UpdatedAt time.Time       `json:"updated_at"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Assistant represents a saved bot configuration that drives how a thread's turns are
// generated.
type Assistant struct {
	ID        string          `json:"assistant_id"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config"`
	Public    bool            `json:"public"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ThreadState is a thread's canonical, server-confirmed message list together with the ids of
// pending continuations and the config snapshot in effect when the state was captured.
type ThreadState struct {
	Messages []Message       `json:"messages"`
	Next     []string        `json:"next,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}
