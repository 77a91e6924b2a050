// Package config provides the configuration schema and loader for the
// readalong engine and its headless player.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration with YAML decoding from strings like "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Engine       EngineConfig       `yaml:"engine"`
	Voice        VoiceConfig        `yaml:"voice"`
	Conversation ConversationConfig `yaml:"conversation"`
	Story        StoryConfig        `yaml:"story"`
}

// ServerConfig holds logging and listener settings for the headless player.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// BridgeAddr is the TCP address of the websocket host bridge
	// (e.g., ":8787"). Empty disables the bridge.
	BridgeAddr string `yaml:"bridge_addr"`

	// MetricsAddr is the TCP address of the Prometheus /metrics endpoint.
	// Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// EngineConfig holds the pacing knobs of the playbook engine.
type EngineConfig struct {
	// StartDelay is the wait before the first page starts playing.
	StartDelay Duration `yaml:"start_delay"`

	// ReadGap is the settle delay appended after each read action.
	ReadGap Duration `yaml:"read_gap"`

	// PageGap is the host-policy delay between a page completing and
	// auto-advance playing the next page.
	PageGap Duration `yaml:"page_gap"`

	// PageSettle is the delay between the last page completing and the
	// terminal finish transition.
	PageSettle Duration `yaml:"page_settle"`

	// UnknownGrace is how long an unrecognized action type holds the
	// sequence before resolving.
	UnknownGrace Duration `yaml:"unknown_grace"`

	// FadeOut is the fade applied when playback is cancelled mid-flight.
	FadeOut Duration `yaml:"fade_out"`

	// AutoAdvance makes the headless player call Play on the next page
	// after each page completes. The engine core itself never advances.
	AutoAdvance bool `yaml:"auto_advance"`
}

// VoiceConfig holds the voice-interaction policy.
type VoiceConfig struct {
	// Window is the default listen-window length when an action does not
	// set its own.
	Window Duration `yaml:"window"`

	// MaxRetries bounds unrecognized-retry cycles per voice action.
	MaxRetries int `yaml:"max_retries"`

	// BaseThreshold is the default similarity threshold for options that do
	// not set their own.
	BaseThreshold float64 `yaml:"base_threshold"`

	// RelaxStep is subtracted from the effective threshold on each retry so
	// repeated near-misses eventually pass.
	RelaxStep float64 `yaml:"relax_step"`

	// PressTimeout bounds the wait for a walkie-talkie press signal.
	PressTimeout Duration `yaml:"press_timeout"`

	// ReleaseDebounce is how long a walkie-talkie release must hold before
	// capture actually closes, so accidental flickers don't truncate it.
	ReleaseDebounce Duration `yaml:"release_debounce"`
}

// ConversationConfig selects and configures the AI conversation provider.
type ConversationConfig struct {
	// Provider names the conversation backend. "elevenlabs" is the only
	// built-in; empty runs agent actions against a no-op session.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// AgentID selects the conversational agent at the provider.
	AgentID string `yaml:"agent_id"`

	// BaseURL overrides the provider's default endpoint. Leave empty for
	// the built-in default.
	BaseURL string `yaml:"base_url"`
}

// StoryConfig locates the story assets.
type StoryConfig struct {
	// Dir is the unpacked story folder holding audio assets.
	Dir string `yaml:"dir"`

	// Language is the BCP-47 tag passed to the recognizer.
	Language string `yaml:"language"`
}

// Defaults returns a Config populated with the standard pacing and voice
// policy values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel:   LogInfo,
			BridgeAddr: ":8571",
		},
		Engine: EngineConfig{
			StartDelay:   Duration(1 * time.Second),
			ReadGap:      Duration(250 * time.Millisecond),
			PageGap:      Duration(500 * time.Millisecond),
			PageSettle:   Duration(500 * time.Millisecond),
			UnknownGrace: Duration(3 * time.Second),
			FadeOut:      Duration(1 * time.Second),
		},
		Voice: VoiceConfig{
			Window:          Duration(6 * time.Second),
			MaxRetries:      2,
			BaseThreshold:   0.75,
			RelaxStep:       0.05,
			PressTimeout:    Duration(30 * time.Second),
			ReleaseDebounce: Duration(300 * time.Millisecond),
		},
		Story: StoryConfig{
			Language: "en-US",
		},
	}
}
