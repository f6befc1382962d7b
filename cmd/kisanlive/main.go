// Command kisanlive runs a live voice advisory conversation between the local
// microphone and speaker and a Gemini Live model, printing the transcript as
// it is finalised and serving status and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kisanlive/internal/config"
	"github.com/MrWong99/kisanlive/internal/conversation"
	"github.com/MrWong99/kisanlive/internal/httpapi"
	"github.com/MrWong99/kisanlive/internal/observe"
	"github.com/MrWong99/kisanlive/pkg/audio"
	"github.com/MrWong99/kisanlive/pkg/audio/arbiter"
	"github.com/MrWong99/kisanlive/pkg/audio/device"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "kisanlive.yaml", "path to the YAML configuration file")
	noHTTP := flag.Bool("no-http", false, "disable the status and metrics endpoint")
	watch := flag.Bool("watch", true, "reload voice, instructions and log level when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kisanlive: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kisanlive: %v\n", err)
		}
		return 1
	}

	logger, level, logCloser := newLogger(cfg.Server)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("kisanlive starting",
		"version", version,
		"config", *configPath,
		"provider", cfg.Provider.Name,
		"voice", cfg.Conversation.Voice,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	provider, err := reg.Create(cfg.Provider)
	if err != nil {
		slog.Error("failed to build provider", "err", err, "known", reg.Names())
		return 1
	}

	mic := &device.CommandMicrophone{
		Command: cfg.Audio.Input.Command,
		Args:    cfg.Audio.Input.Args,
		Native:  audio.Format{SampleRate: cfg.Audio.Input.SampleRate, Channels: cfg.Audio.Input.Channels},
	}
	speaker := &device.CommandSpeaker{
		Command: cfg.Audio.Output.Command,
		Args:    cfg.Audio.Output.Args,
	}

	lines := make(chan conversation.Line, 64)
	cc := cfg.Conversation
	ctrl := conversation.New(provider, mic, speaker,
		conversation.WithLogger(logger),
		conversation.WithMetrics(metrics),
		conversation.WithArbiter(arbiter.New()),
		conversation.WithSessionConfig(cc.SessionConfig(cfg.Provider.Model)),
		conversation.WithFrameSize(cc.FrameSize),
		conversation.WithSampleRates(cc.CaptureRate, cc.PlaybackRate),
		conversation.WithOutboundBuffer(cc.OutboundBuffer),
		conversation.WithLineHandler(func(l conversation.Line) {
			select {
			case lines <- l:
			default:
				slog.Warn("transcript printer is behind; line dropped from console output")
			}
		}),
	)

	g, gctx := errgroup.WithContext(ctx)

	if !*noHTTP {
		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           httpapi.New(ctrl, httpapi.WithMetrics(metrics), httpapi.WithLogger(logger)).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http endpoint listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, func(next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
			}
			if d.SessionChanged() {
				ctrl.SetSessionConfig(next.Conversation.SessionConfig(cfg.Provider.Model))
				slog.Info("session settings updated; they apply to the next conversation")
			}
			if len(d.RestartRequired) > 0 {
				slog.Warn("config changes need a restart", "fields", d.RestartRequired)
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			g.Go(func() error {
				_ = w.Run(gctx)
				return nil
			})
		}
	}

	g.Go(func() error {
		printTranscript(gctx, lines)
		return nil
	})

	changes, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	g.Go(func() error {
		return followStatus(gctx, changes, *noHTTP)
	})

	printStartupSummary(cfg, *noHTTP)
	if err := ctrl.Start(gctx); err != nil {
		slog.Error("conversation failed to start", "err", err)
		if *noHTTP {
			stop()
		}
	} else {
		slog.Info("conversation started; press Ctrl+C to end")
	}

	err = g.Wait()
	slog.Info("shutting down")
	ctrl.Stop()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errConversationEnded) {
		slog.Error("run error", "err", err)
		return 1
	}
	if ctrl.EndReason() == conversation.ReasonSetupFailed || ctrl.EndReason() == conversation.ReasonRemoteError {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// printTranscript writes each finalised line to stdout.
func printTranscript(ctx context.Context, lines <-chan conversation.Line) {
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-lines:
			fmt.Println(l.String())
		}
	}
}

// followStatus logs status changes. Without the HTTP endpoint there is no way
// to start another conversation, so the process exits when one ends.
func followStatus(ctx context.Context, changes <-chan conversation.StatusChange, exitOnEnd bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			slog.Info("conversation status", "session_id", ch.SessionID, "status", ch.To.String())
			if ch.To != conversation.StatusEnded {
				continue
			}
			slog.Info("conversation ended", "session_id", ch.SessionID, "reason", ch.Reason.String(), "err", ch.Err)
			if exitOnEnd {
				return errConversationEnded
			}
		}
	}
}

var errConversationEnded = errors.New("conversation ended")

func printStartupSummary(cfg *config.Config, noHTTP bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Kisan Live: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Name)
	printRow("Model", cfg.Provider.Model)
	printRow("Voice", cfg.Conversation.Voice)
	printRow("Language", cfg.Conversation.Language)
	printRow("Microphone", cfg.Audio.Input.Command)
	printRow("Speaker", cfg.Audio.Output.Command)
	if noHTTP {
		printRow("Listen addr", "(disabled)")
	} else {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(default)"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value, 19))
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
