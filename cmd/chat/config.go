package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type config struct {
	ServerURL   string `yaml:"serverUrl"`
	UserID      string `yaml:"userId"`
	AssistantID string `yaml:"assistantId"`
	CachePath   string `yaml:"cachePath"`

	// MergeView requests the history-plus-stream composition while a turn is inflight.
	MergeView bool `yaml:"mergeView"`
}

func loadConfig(path string) (config, error) {
	f, err := os.Open(path)
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg := config{}
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	if cfg.ServerURL == "" {
		return config{}, fmt.Errorf("serverUrl is required")
	}
	if cfg.UserID == "" {
		cfg.UserID = "default"
	}

	return cfg, nil
}
