// Package config loads and validates the kith configuration file.
//
// Configuration is explicit: Load returns a Config value that callers
// pass down; there is no process-wide config state. The YAML decode is
// strict (unknown fields fail) and the decoded value is checked against
// an embedded CUE schema before use.
package config

import (
	"time"

	"github.com/ADITIII0201/kith/internal/session"
	"github.com/ADITIII0201/kith/internal/snapshot"
	"github.com/ADITIII0201/kith/internal/social"
	"github.com/ADITIII0201/kith/internal/suggest"
)

// Config is the root of the kith configuration file.
type Config struct {
	Weights     social.RankingWeights `yaml:"weights" json:"weights"`
	Suggestions SuggestionsConfig     `yaml:"suggestions" json:"suggestions"`
	Session     SessionConfig         `yaml:"session" json:"session"`
	Snapshot    SnapshotConfig        `yaml:"snapshot" json:"snapshot"`
	Directory   DirectoryConfig       `yaml:"directory" json:"directory"`
	Connect     ConnectConfig         `yaml:"connect" json:"connect"`
}

// SuggestionsConfig bounds the ranked output.
type SuggestionsConfig struct {
	Limit int `yaml:"limit" json:"limit"`
}

// SessionConfig addresses the sync relay and shapes reconnection.
type SessionConfig struct {
	RelayURL       string   `yaml:"relay_url" json:"relay_url"`
	ConnectTimeout Duration `yaml:"connect_timeout" json:"connect_timeout"`
	RetryInterval  Duration `yaml:"retry_interval" json:"retry_interval"`
	MaxRetryDelay  Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
}

// SnapshotConfig locates the durable document store. An empty Dir keeps
// snapshots in memory.
type SnapshotConfig struct {
	Dir        string   `yaml:"dir" json:"dir"`
	RetryDelay Duration `yaml:"retry_delay" json:"retry_delay"`
}

// DirectoryConfig locates the social-graph database.
type DirectoryConfig struct {
	DB string `yaml:"db" json:"db"`
}

// ConnectConfig shapes the simulated connect round trip.
type ConnectConfig struct {
	Latency     Duration `yaml:"latency" json:"latency"`
	FailureRate float64  `yaml:"failure_rate" json:"failure_rate"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Weights: social.DefaultWeights(),
		Suggestions: SuggestionsConfig{
			Limit: suggest.DefaultLimit,
		},
		Session: SessionConfig{
			RelayURL:       "ws://127.0.0.1:8737/sync",
			ConnectTimeout: Duration(session.DefaultConnectTimeout),
			RetryInterval:  Duration(session.DefaultRetryInterval),
			MaxRetryDelay:  Duration(session.DefaultMaxRetryDelay),
		},
		Snapshot: SnapshotConfig{
			Dir:        "",
			RetryDelay: Duration(snapshot.DefaultRetryDelay),
		},
		Directory: DirectoryConfig{
			DB: "kith.db",
		},
		Connect: ConnectConfig{
			Latency:     Duration(150 * time.Millisecond),
			FailureRate: 0.2,
		},
	}
}
