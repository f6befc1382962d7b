package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/kisanlive/internal/config"
	"github.com/MrWong99/kisanlive/internal/conversation"
)

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Zephyr", 19, "Zephyr"},
		{"gemini-2.5-flash-native-audio", 19, "gemini-2.5-flash-n…"},
		{"किसान सलाहकार हिन्दी भाषा", 19, "किसान सलाहकार हिन्…"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
		if n := utf8.RuneCountInString(got); n > tt.n {
			t.Errorf("truncate(%q, %d) has %d runes", tt.in, tt.n, n)
		}
	}
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kisanlive.log")
	logger, level, closer := newLogger(config.ServerConfig{
		LogLevel: config.LogWarn,
		LogFile:  &config.LogFileConfig{Path: path, MaxSizeMB: 1},
	})
	logger.Info("hidden")
	level.Set(slog.LevelInfo)
	logger.Info("visible", "session_id", "abc")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); !strings.Contains(got, "visible") || strings.Contains(got, "hidden") {
		t.Errorf("log file = %q", got)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	f, err := os.Open(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := config.LoadFromReader(f)
	if err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("APIKey = %q", cfg.Provider.APIKey)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.Create(cfg.Provider)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name() != "gemini-live" {
		t.Errorf("provider = %q", p.Name())
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	for _, name := range config.ValidProviderNames {
		p, err := reg.Create(config.ProviderEntry{Name: name, APIKey: "k", Model: "m"})
		if err != nil {
			t.Errorf("Create(%q): %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("Create(%q).Name() = %q", name, p.Name())
		}
	}
}

func TestFollowStatus(t *testing.T) {
	t.Parallel()

	changes := make(chan conversation.StatusChange, 2)
	changes <- conversation.StatusChange{To: conversation.StatusListening}
	changes <- conversation.StatusChange{To: conversation.StatusEnded, Reason: conversation.ReasonRemoteClosed}

	err := followStatus(context.Background(), changes, true)
	if !errors.Is(err, errConversationEnded) {
		t.Errorf("followStatus = %v, want errConversationEnded", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := followStatus(ctx, make(chan conversation.StatusChange), false); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("followStatus = %v, want deadline exceeded", err)
	}
}
