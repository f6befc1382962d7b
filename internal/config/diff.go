package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked: the log
// level and the settings used for the next conversation session.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged         bool
	InstructionsChanged  bool
	LanguageChanged      bool
	TranscriptionChanged bool

	// RestartRequired lists changed fields that only take effect after a
	// restart (provider, audio commands, listen address, sample rates).
	RestartRequired []string
}

// SessionChanged reports whether any setting of the next session changed.
func (d ConfigDiff) SessionChanged() bool {
	return d.VoiceChanged || d.InstructionsChanged || d.LanguageChanged || d.TranscriptionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Conversation, new.Conversation
	d.VoiceChanged = oc.Voice != nc.Voice
	d.InstructionsChanged = oc.Instructions != nc.Instructions
	d.LanguageChanged = oc.Language != nc.Language
	d.TranscriptionChanged = oc.TranscriptionEnabled() != nc.TranscriptionEnabled()

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Provider.Name != new.Provider.Name || old.Provider.Model != new.Provider.Model ||
		old.Provider.APIKey != new.Provider.APIKey || old.Provider.BaseURL != new.Provider.BaseURL {
		d.RestartRequired = append(d.RestartRequired, "provider")
	}
	if oc.FrameSize != nc.FrameSize || oc.CaptureRate != nc.CaptureRate ||
		oc.PlaybackRate != nc.PlaybackRate || oc.OutboundBuffer != nc.OutboundBuffer {
		d.RestartRequired = append(d.RestartRequired, "conversation.audio")
	}
	if !commandEqual(old.Audio.Input, new.Audio.Input) || !commandEqual(old.Audio.Output, new.Audio.Output) {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	return d
}

func commandEqual(a, b CommandConfig) bool {
	if a.Command != b.Command || a.SampleRate != b.SampleRate || a.Channels != b.Channels || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}
