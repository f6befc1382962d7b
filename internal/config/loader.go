package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the live providers shipped with Kisan Live.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"gemini-live", "genai-live"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultProvider       = "gemini-live"
	DefaultVoice          = "Zephyr"
	DefaultFrameSize      = 4096
	DefaultCaptureRate    = 16000
	DefaultPlaybackRate   = 24000
	DefaultOutboundBuffer = 8

	defaultLogMaxSizeMB  = 50
	defaultLogMaxBackups = 3
	defaultLogMaxAgeDays = 28
)

var (
	defaultInput = CommandConfig{
		Command: "arecord",
		Args:    []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-"},
	}
	defaultOutput = CommandConfig{
		Command: "aplay",
		Args:    []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-"},
	}
)

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. A ".env" file next to the working directory
// is loaded first so that ${VAR} references can resolve from it.
func Load(path string) (*Config, error) {
	if err := LoadEnv(".env"); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults, and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if lf := cfg.Server.LogFile; lf != nil {
		if lf.MaxSizeMB == 0 {
			lf.MaxSizeMB = defaultLogMaxSizeMB
		}
		if lf.MaxBackups == 0 {
			lf.MaxBackups = defaultLogMaxBackups
		}
		if lf.MaxAgeDays == 0 {
			lf.MaxAgeDays = defaultLogMaxAgeDays
		}
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProvider
	}

	cc := &cfg.Conversation
	if cc.Voice == "" {
		cc.Voice = DefaultVoice
	}
	if cc.FrameSize == 0 {
		cc.FrameSize = DefaultFrameSize
	}
	if cc.CaptureRate == 0 {
		cc.CaptureRate = DefaultCaptureRate
	}
	if cc.PlaybackRate == 0 {
		cc.PlaybackRate = DefaultPlaybackRate
	}
	if cc.OutboundBuffer == 0 {
		cc.OutboundBuffer = DefaultOutboundBuffer
	}

	if cfg.Audio.Input.Command == "" {
		cfg.Audio.Input.Command = defaultInput.Command
		if cfg.Audio.Input.Args == nil {
			cfg.Audio.Input.Args = slices.Clone(defaultInput.Args)
		}
	}
	if cfg.Audio.Output.Command == "" {
		cfg.Audio.Output.Command = defaultOutput.Command
		if cfg.Audio.Output.Args == nil {
			cfg.Audio.Output.Args = slices.Clone(defaultOutput.Args)
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if lf := cfg.Server.LogFile; lf != nil {
		if lf.Path == "" {
			errs = append(errs, errors.New("server.log_file.path is required when log_file is set"))
		}
		if lf.MaxSizeMB < 0 || lf.MaxBackups < 0 || lf.MaxAgeDays < 0 {
			errs = append(errs, errors.New("server.log_file rotation limits must not be negative"))
		}
	}

	// Provider
	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider.api_key is empty; the provider will fall back to its own credential lookup")
	}

	// Conversation
	cc := cfg.Conversation
	if cc.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("conversation.frame_size %d must be positive", cc.FrameSize))
	}
	if cc.CaptureRate < 0 {
		errs = append(errs, fmt.Errorf("conversation.capture_rate %d must be positive", cc.CaptureRate))
	}
	if cc.PlaybackRate < 0 {
		errs = append(errs, fmt.Errorf("conversation.playback_rate %d must be positive", cc.PlaybackRate))
	}
	if cc.OutboundBuffer < 0 {
		errs = append(errs, fmt.Errorf("conversation.outbound_buffer %d must be positive", cc.OutboundBuffer))
	}

	// Audio
	in := cfg.Audio.Input
	if in.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input.sample_rate %d must not be negative", in.SampleRate))
	}
	if in.Channels != 0 && in.Channels != 1 && in.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.input.channels %d is invalid; valid values: 1, 2", in.Channels))
	}
	if in.Channels != 0 && in.SampleRate == 0 {
		errs = append(errs, errors.New("audio.input.sample_rate is required when audio.input.channels is set"))
	}

	return errors.Join(errs...)
}
