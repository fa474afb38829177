// Package config manages the singq server configuration.
// It handles loading, defaulting, and validating the TOML config file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/patrikvak/singq/internal/reorder"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the singq configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Plans     PlansConfig     `toml:"plans"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Broadcast BroadcastConfig `toml:"broadcast"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Listen    string `toml:"listen"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// StoreConfig holds the SQLite database location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// PlansConfig bounds the preview->apply window.
type PlansConfig struct {
	TTLMinutes int `toml:"ttl_minutes"`
}

// OptimizerConfig holds the default reorder constraints and the
// fairness scoring weights.
type OptimizerConfig struct {
	FrozenHead      int     `toml:"frozen_head"`
	MovementCap     int     `toml:"movement_cap"`
	Horizon         int     `toml:"horizon"`
	MaturePolicy    string  `toml:"mature_policy"`
	Base            float64 `toml:"base"`
	VIPBonus        float64 `toml:"vip_bonus"`
	BreakPenalty    float64 `toml:"break_penalty"`
	WaitWeight      float64 `toml:"wait_weight"`
	WaitCapMinutes  int     `toml:"wait_cap_minutes"`
	MonopolyPenalty float64 `toml:"monopoly_penalty"`
}

// BroadcastConfig holds the real-time gateway targets. Both webhook
// URLs and a NATS server may be configured at once.
type BroadcastConfig struct {
	WebhookURLs []string `toml:"webhook_urls"`
	NATSURL     string   `toml:"nats_url"`
	NATSSubject string   `toml:"nats_subject"`
}

// Default returns the stock configuration.
func Default() *Config {
	scoring := reorder.DefaultScoring()
	return &Config{
		Server: ServerConfig{
			Listen:    "0.0.0.0:8730",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Store: StoreConfig{Path: "singq.db"},
		Plans: PlansConfig{TTLMinutes: 5},
		Optimizer: OptimizerConfig{
			FrozenHead:      2,
			MovementCap:     0,
			Horizon:         0,
			MaturePolicy:    string(reorder.MatureAllow),
			Base:            scoring.Base,
			VIPBonus:        scoring.VIPBonus,
			BreakPenalty:    scoring.BreakPenalty,
			WaitWeight:      scoring.WaitWeight,
			WaitCapMinutes:  int(scoring.WaitCap.Minutes()),
			MonopolyPenalty: scoring.MonopolyPenalty,
		},
	}
}

// Load reads the configuration file, filling unset values with
// defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to disk
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Plans.TTLMinutes <= 0 {
		return fmt.Errorf("plans.ttl_minutes must be positive")
	}
	switch reorder.MaturePolicy(c.Optimizer.MaturePolicy) {
	case reorder.MatureAllow, reorder.MatureDefer, "":
	default:
		return fmt.Errorf("optimizer.mature_policy must be %q or %q", reorder.MatureAllow, reorder.MatureDefer)
	}
	return nil
}

// PlanTTL returns the plan lifetime.
func (c *Config) PlanTTL() time.Duration {
	return time.Duration(c.Plans.TTLMinutes) * time.Minute
}

// Scoring returns the optimizer weights.
func (c *Config) Scoring() reorder.Scoring {
	return reorder.Scoring{
		Base:            c.Optimizer.Base,
		VIPBonus:        c.Optimizer.VIPBonus,
		BreakPenalty:    c.Optimizer.BreakPenalty,
		WaitWeight:      c.Optimizer.WaitWeight,
		WaitCap:         time.Duration(c.Optimizer.WaitCapMinutes) * time.Minute,
		MonopolyPenalty: c.Optimizer.MonopolyPenalty,
	}
}

// Constraints returns the default reorder constraints.
func (c *Config) Constraints() reorder.Constraints {
	policy := reorder.MaturePolicy(c.Optimizer.MaturePolicy)
	if policy == "" {
		policy = reorder.MatureAllow
	}
	return reorder.Constraints{
		FrozenHead:   c.Optimizer.FrozenHead,
		MovementCap:  c.Optimizer.MovementCap,
		Horizon:      c.Optimizer.Horizon,
		MaturePolicy: policy,
	}
}
