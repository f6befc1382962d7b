package main

import (
	"log/slog"

	"google.golang.org/genai"

	"github.com/MrWong99/kisanlive/internal/config"
	"github.com/MrWong99/kisanlive/pkg/provider/live"
	"github.com/MrWong99/kisanlive/pkg/provider/live/gemini"
	"github.com/MrWong99/kisanlive/pkg/provider/live/genailive"
)

// registerBuiltinProviders wires the live providers that ship with Kisan
// Live into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Raw BidiGenerateContent over WebSocket.
	reg.Register("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	// Official Gen AI SDK. options.backend selects "gemini" (default) or
	// "vertex"; the latter reads options.project and options.location.
	reg.Register("genai-live", func(entry config.ProviderEntry) (live.Provider, error) {
		cc := genai.ClientConfig{
			APIKey:  entry.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if config.OptString(entry.Options, "backend") == "vertex" {
			cc.Backend = genai.BackendVertexAI
			cc.Project = config.OptString(entry.Options, "project")
			cc.Location = config.OptString(entry.Options, "location")
		}
		if entry.BaseURL != "" {
			cc.HTTPOptions.BaseURL = entry.BaseURL
		}
		opts := []genailive.Option{genailive.WithClientConfig(cc)}
		if entry.Model != "" {
			opts = append(opts, genailive.WithModel(entry.Model))
		}
		return genailive.New(entry.APIKey, opts...), nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered provider", "name", name)
	}
}
