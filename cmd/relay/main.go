package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lokutor-ai/lokutor-relay/pkg/audio"
	"github.com/lokutor-ai/lokutor-relay/pkg/capture"
	"github.com/lokutor-ai/lokutor-relay/pkg/config"
	"github.com/lokutor-ai/lokutor-relay/pkg/observe"
	"github.com/lokutor-ai/lokutor-relay/pkg/orchestrator"
	"github.com/lokutor-ai/lokutor-relay/pkg/providers/broadcast"
	"github.com/lokutor-ai/lokutor-relay/pkg/providers/realtime"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	modeFlag := flag.String("mode", "", "turn mode on connect: manual or server_vad (overrides config)")
	dumpPath := flag.String("dump", "", "write the mirrored translation audio to this WAV file on exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *modeFlag != "" {
		cfg.TurnMode = *modeFlag
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *dumpPath); err != nil {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, dumpPath string) error {
	mode, err := orchestrator.ParseTurnMode(cfg.TurnMode)
	if err != nil {
		return err
	}
	oc, err := cfg.Orchestrator()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	buffer := audio.NewFrameBuffer(cfg.Audio.FrameSize)
	if err := buffer.Configure(cfg.Audio.SampleRate); err != nil {
		return err
	}
	mic := capture.NewController(capture.NewMalgoDevice(cfg.Audio.FrameSize), buffer)

	session := realtime.NewOpenAIRealtime(cfg.APIKey,
		realtime.WithBaseURL(cfg.Realtime.URL),
		realtime.WithLogger(logger),
	)

	var mirror orchestrator.Broadcaster = broadcast.NewWebSocketBroadcaster()
	var recording *audio.WavRecorder
	if dumpPath != "" {
		// realtime pcm16 output is 24 kHz mono
		recording = audio.NewWavRecorder(audio.DefaultSampleRate)
		mirror = broadcast.NewTee(mirror, orchestrator.MirrorChannel(oc.Language), recording)
	}

	orch, err := orchestrator.New(session, mic, mirror, oc,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(telemetry.Metrics),
	)
	if err != nil {
		return err
	}
	orch.OnTranscript(func(tr orchestrator.Transcript) {
		fmt.Printf("\r\033[K[%s] %s\n", tr.Language, tr.Text)
	})

	if err := orch.Mount(ctx); err != nil {
		logger.Warn("continuing without broadcast channel", "error", err)
	}
	if err := orch.Connect(ctx); err != nil {
		orch.Close(context.Background())
		return err
	}
	if err := orch.SetMode(ctx, mode); err != nil {
		logger.Warn("could not apply turn mode", "mode", mode, "error", err)
	}

	printHelp(orch)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	commands := readCommands()
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-commands:
				if !ok {
					cancel()
					return nil
				}
				if quit := handleCommand(gctx, orch, logger, line); quit {
					cancel()
					return nil
				}
			}
		}
	})

	err = g.Wait()
	fmt.Printf("\nShutting down...\n")

	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if cerr := orch.Close(closeCtx); cerr != nil {
		logger.Warn("close failed", "error", cerr)
	}

	if recording != nil && recording.Len() > 0 {
		if werr := os.WriteFile(dumpPath, recording.WAV(), 0o644); werr != nil {
			logger.Error("failed to write translation audio", "path", dumpPath, "error", werr)
		} else {
			logger.Info("translation audio saved", "path", dumpPath, "bytes", recording.Len())
		}
	}
	return err
}

// readCommands feeds stdin lines to a channel that is closed on EOF.
func readCommands() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			out <- strings.TrimSpace(scanner.Text())
		}
	}()
	return out
}

func handleCommand(ctx context.Context, orch *orchestrator.Orchestrator, logger *slog.Logger, line string) bool {
	var err error
	switch strings.ToLower(line) {
	case "":
		return false
	case "r", "record":
		err = orch.StartRecording(ctx)
	case "s", "stop", "send":
		err = orch.StopRecording(ctx)
	case "m", "manual", "none":
		err = orch.SetMode(ctx, orchestrator.TurnManual)
	case "v", "vad", "server_vad":
		err = orch.SetMode(ctx, orchestrator.TurnServerVAD)
	case "c", "connect":
		err = orch.Connect(ctx)
	case "d", "disconnect":
		err = orch.Disconnect(ctx)
	case "status":
		fmt.Printf("mode=%s mic=%s connected=%t events=%d transcripts=%d\n",
			orch.Mode(), orch.CaptureStatus(), orch.Connected(), len(orch.Events()), len(orch.Transcripts()))
	case "q", "quit", "exit":
		return true
	default:
		printHelp(orch)
	}
	if err != nil {
		logger.Error("command failed", "command", line, "error", err)
	}
	return false
}

func printHelp(orch *orchestrator.Orchestrator) {
	cfg := orch.GetConfig()
	fmt.Printf("Relay: connected=%t model=%s voice=%s mirror=%s mode=%s\n",
		orch.Connected(), cfg.Model, cfg.Voice, orchestrator.MirrorChannel(cfg.Language), orch.Mode())
	fmt.Println("Commands: connect | disconnect | record | stop | manual | vad | status | quit")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.Level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
