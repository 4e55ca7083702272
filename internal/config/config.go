// Package config loads the application configuration from a YAML file
// with environment overrides, and watches the file for changes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/banterworks/banterbot/internal/session"
)

// envPrefix scopes environment overrides: BANTER_PROVIDER_API_KEY maps
// to provider.api_key.
const envPrefix = "BANTER_"

// Config is the full application configuration.
type Config struct {
	Keys     KeysConfig        `koanf:"keys"`
	Provider ProviderConfig    `koanf:"provider"`
	Cache    CacheConfig       `koanf:"cache"`
	Observer ObserverConfig    `koanf:"observer"`
	Typer    TyperConfig       `koanf:"typer"`
	Speech   SpeechConfig      `koanf:"speech"`
	Metrics  MetricsConfig     `koanf:"metrics"`
	Diag     DiagConfig        `koanf:"diag"`
	Audio    AudioConfig       `koanf:"audio"`
	Personas []session.Persona `koanf:"personas"`

	DefaultPersona string `koanf:"default_persona"`
	Language       string `koanf:"language"`
	DryRun         bool   `koanf:"dry_run"`
}

// KeysConfig names the hotkeys the input listener binds.
type KeysConfig struct {
	Trigger      string `koanf:"trigger"`
	VoiceTrigger string `koanf:"voice_trigger"`
	NextPersona  string `koanf:"next_persona"`
	PrevPersona  string `koanf:"prev_persona"`
}

// ProviderConfig selects and configures the generation backend.
type ProviderConfig struct {
	Type         string   `koanf:"type"` // openai, fixed, random
	APIKey       string   `koanf:"api_key"`
	Model        string   `koanf:"model"`
	BaseURL      string   `koanf:"base_url"`
	Timeout      string   `koanf:"timeout"`
	FixedMessage string   `koanf:"fixed_message"`
	Messages     []string `koanf:"messages"`
}

// CacheConfig selects the response cache variant.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Type    string `koanf:"type"` // memory, sqlite
	Path    string `koanf:"path"`
	TTL     string `koanf:"ttl"`
}

// ObserverConfig configures optional context gathering.
type ObserverConfig struct {
	Type      string   `koanf:"type"` // scenarios, exec, none
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	Scenarios []string `koanf:"scenarios"`
	Timeout   string   `koanf:"timeout"`
}

// TyperConfig configures the chat output sink.
type TyperConfig struct {
	Type      string   `koanf:"type"` // exec, debug
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	MaxLength int      `koanf:"max_length"`
}

// SpeechConfig configures the voice output sink.
type SpeechConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
	VoiceID string `koanf:"voice_id"`
	ModelID string `koanf:"model_id"`
}

// MetricsConfig configures the usage recorder.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// DiagConfig configures the diagnostics HTTP server.
type DiagConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// AudioConfig configures the shared playback device.
type AudioConfig struct {
	Enabled    bool `koanf:"enabled"`
	SampleRate int  `koanf:"sample_rate"`
}

// DefaultPersonas ship so a fresh install has something to cycle.
var DefaultPersonas = []session.Persona{
	{Name: "Reputation Farmer", Style: "Relentlessly wholesome teammate. Compliments everyone, defuses tilt, begs for commends."},
	{Name: "Toxic", Style: "Salty, sarcastic, convinced everyone else is the problem. Never outright slurs, just attitude."},
	{Name: "Hype", Style: "Caps-lock energy, treats every round like a grand final, loves everyone."},
	{Name: "Zen", Style: "Unbothered. Short calm one-liners, wins and losses are the same to them."},
}

// Load reads the config file at path (missing file is fine; defaults
// and environment apply) and overlays BANTER_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Personas) == 0 {
		cfg.Personas = DefaultPersonas
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"keys.trigger":       "f6",
		"keys.voice_trigger": "f9",
		"keys.next_persona":  "f8",
		"keys.prev_persona":  "f7",
		"provider.type":      "openai",
		"provider.model":     "gpt-4o-mini",
		"provider.timeout":   "10s",
		"cache.enabled":      true,
		"cache.type":         "memory",
		"cache.path":         "banterbot-cache.db",
		"cache.ttl":          "24h",
		"observer.type":      "scenarios",
		"observer.timeout":   "2s",
		"typer.type":         "debug",
		"typer.max_length":   120,
		"metrics.enabled":    true,
		"metrics.path":       "banterbot-usage.db",
		"diag.addr":          "127.0.0.1:8642",
		"audio.enabled":      true,
		"language":           "en",
		"default_persona":    "Reputation Farmer",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// CacheTTL parses the configured TTL, falling back to 24h.
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 24*time.Hour)
}

// ObserverTimeout parses the context-gather timeout, falling back to 2s.
func (c *Config) ObserverTimeout() time.Duration {
	return parseDuration(c.Observer.Timeout, 2*time.Second)
}

// ProviderTimeout parses the provider-call timeout, falling back to 10s.
func (c *Config) ProviderTimeout() time.Duration {
	return parseDuration(c.Provider.Timeout, 10*time.Second)
}

// PersonaIndex resolves the configured default persona to an index,
// or 0 when not found.
func (c *Config) PersonaIndex() int {
	for i, p := range c.Personas {
		if p.Name == c.DefaultPersona {
			return i
		}
	}
	return 0
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
