// Package config provides the configuration schema, loader, and provider
// registry for Kisan Live.
package config

import "github.com/MrWong99/kisanlive/pkg/provider/live"

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

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Provider     ProviderEntry      `yaml:"provider"`
	Conversation ConversationConfig `yaml:"conversation"`
	Audio        AudioConfig        `yaml:"audio"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the status and metrics endpoint
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, additionally writes logs to a rotated file.
	LogFile *LogFileConfig `yaml:"log_file"`
}

// LogFileConfig configures the rotated log file.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ProviderEntry selects and configures the live model provider. The Name
// field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation ("gemini-live" or
	// "genai-live").
	Name string `yaml:"name"`

	// APIKey is the authentication key. ${VAR} references are expanded from
	// the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the live model. Empty means the provider default.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ConversationConfig holds the per-session settings.
type ConversationConfig struct {
	// Voice is the prebuilt voice name. Defaults to "Zephyr".
	Voice string `yaml:"voice"`

	// Instructions is the system instruction given to the model.
	Instructions string `yaml:"instructions"`

	// Language is a BCP-47 language code for speech (e.g., "hi-IN").
	Language string `yaml:"language"`

	// Transcription toggles input and output transcription. Defaults to on.
	Transcription *bool `yaml:"transcription"`

	FrameSize      int `yaml:"frame_size"`
	CaptureRate    int `yaml:"capture_rate"`
	PlaybackRate   int `yaml:"playback_rate"`
	OutboundBuffer int `yaml:"outbound_buffer"`
}

// TranscriptionEnabled reports whether transcription is requested.
func (c ConversationConfig) TranscriptionEnabled() bool {
	return c.Transcription == nil || *c.Transcription
}

// SessionConfig returns the provider session settings for model.
func (c ConversationConfig) SessionConfig(model string) live.SessionConfig {
	on := c.TranscriptionEnabled()
	return live.SessionConfig{
		Model:               model,
		Voice:               c.Voice,
		Instructions:        c.Instructions,
		Language:            c.Language,
		InputTranscription:  on,
		OutputTranscription: on,
	}
}

// AudioConfig selects the processes used for capture and playback.
type AudioConfig struct {
	Input  CommandConfig `yaml:"input"`
	Output CommandConfig `yaml:"output"`
}

// CommandConfig describes an external audio process exchanging raw s16le
// PCM on stdin or stdout. Args may contain {rate} and {channels}.
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// SampleRate and Channels describe the native format of a capture
	// process. Zero means the session format is requested directly. Output
	// processes always receive the session format.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}
