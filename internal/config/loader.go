package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Missing fields take their [Defaults] values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty config file: run entirely on defaults.
			return cfg, nil
		}
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Voice.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("voice.max_retries must not be negative, got %d", cfg.Voice.MaxRetries))
	}
	if cfg.Voice.BaseThreshold < 0 || cfg.Voice.BaseThreshold > 1 {
		errs = append(errs, fmt.Errorf("voice.base_threshold must be in [0,1], got %g", cfg.Voice.BaseThreshold))
	}
	if cfg.Voice.RelaxStep < 0 || cfg.Voice.RelaxStep > 1 {
		errs = append(errs, fmt.Errorf("voice.relax_step must be in [0,1], got %g", cfg.Voice.RelaxStep))
	}
	if cfg.Voice.Window.Std() <= 0 {
		errs = append(errs, fmt.Errorf("voice.window must be positive, got %s", cfg.Voice.Window.Std()))
	}

	for _, d := range []struct {
		name string
		val  Duration
	}{
		{"engine.start_delay", cfg.Engine.StartDelay},
		{"engine.read_gap", cfg.Engine.ReadGap},
		{"engine.page_gap", cfg.Engine.PageGap},
		{"engine.page_settle", cfg.Engine.PageSettle},
		{"engine.unknown_grace", cfg.Engine.UnknownGrace},
		{"engine.fade_out", cfg.Engine.FadeOut},
	} {
		if d.val.Std() < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", d.name, d.val.Std()))
		}
	}

	if cfg.Conversation.Provider != "" && cfg.Conversation.Provider != "elevenlabs" {
		errs = append(errs, fmt.Errorf("conversation.provider %q is unknown; valid values: elevenlabs", cfg.Conversation.Provider))
	}
	if cfg.Conversation.Provider == "elevenlabs" && cfg.Conversation.APIKey == "" {
		errs = append(errs, fmt.Errorf("conversation.api_key is required when conversation.provider is set"))
	}

	return errors.Join(errs...)
}
