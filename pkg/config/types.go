package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Store       StoreConfig       `toml:"store"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	Engine      EngineConfig      `toml:"engine"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"event_stream"`
}

// StoreConfig holds memory store settings. Target is a file path for
// sqlite-vec, a gRPC address for qdrant, and a base URL for chroma.
type StoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// LedgerConfig holds history ledger settings. Target is a file path for
// sqlite and a DSN for postgres.
type LedgerConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds settings for the completion model behind extraction and
// classification. API keys come from the environment, never the file.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// EngineConfig holds reconciliation engine tuning.
type EngineConfig struct {
	CandidateLimit uint `toml:"candidate_limit,omitempty"`
	MaxAttempts    uint `toml:"max_attempts,omitempty"`
	NumWorkers     uint `toml:"num_workers,omitempty"`
	QueueSize      uint `toml:"queue_size,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds change event publishing settings. Provider is
// "none" or "kafka"; Brokers is a comma-separated address list.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// BrokerList splits the comma-separated broker string.
func (e EventStreamConfig) BrokerList() []string {
	if e.Brokers == "" {
		return nil
	}

	parts := strings.Split(e.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(get func(c *Config) uint, set func(c *Config, n uint), name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(get(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			set(c, uint(n))
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"store.provider": {
		get: func(c *Config) string { return c.Store.Provider },
		set: func(c *Config, v string) error { c.Store.Provider = v; return nil },
	},
	"store.target": {
		get: func(c *Config) string { return c.Store.Target },
		set: func(c *Config, v string) error { c.Store.Target = v; return nil },
	},
	"store.collection": {
		get: func(c *Config) string { return c.Store.Collection },
		set: func(c *Config, v string) error { c.Store.Collection = v; return nil },
	},
	"ledger.provider": {
		get: func(c *Config) string { return c.Ledger.Provider },
		set: func(c *Config, v string) error { c.Ledger.Provider = v; return nil },
	},
	"ledger.target": {
		get: func(c *Config) string { return c.Ledger.Target },
		set: func(c *Config, v string) error { c.Ledger.Target = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": uintKey(
		func(c *Config) uint { return c.Embedding.Dimensions },
		func(c *Config, n uint) { c.Embedding.Dimensions = n },
		"embedding.dimensions",
	),
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"engine.candidate_limit": uintKey(
		func(c *Config) uint { return c.Engine.CandidateLimit },
		func(c *Config, n uint) { c.Engine.CandidateLimit = n },
		"engine.candidate_limit",
	),
	"engine.max_attempts": uintKey(
		func(c *Config) uint { return c.Engine.MaxAttempts },
		func(c *Config, n uint) { c.Engine.MaxAttempts = n },
		"engine.max_attempts",
	),
	"engine.num_workers": uintKey(
		func(c *Config) uint { return c.Engine.NumWorkers },
		func(c *Config, n uint) { c.Engine.NumWorkers = n },
		"engine.num_workers",
	),
	"engine.queue_size": uintKey(
		func(c *Config) uint { return c.Engine.QueueSize },
		func(c *Config, n uint) { c.Engine.QueueSize = n },
		"engine.queue_size",
	),
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"event_stream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"event_stream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"event_stream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}
