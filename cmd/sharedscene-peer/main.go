// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// sharedscene-peer joins a shared scene session and exposes the sync
// coordinator as a line-oriented shell on stdin. Remote changes are
// printed as they arrive. Run several peers against the same signal
// directory to form a WebRTC mesh on one machine or across a shared
// mount; with the memory transport a single peer runs on its own.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/sharedscene/coordinator"
	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/config"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/process"
	"github.com/bureau-foundation/sharedscene/lib/version"
	"github.com/bureau-foundation/sharedscene/transport"
)

// leaveTimeout bounds the graceful leave on quit.
const leaveTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var configPath string
	var participantID string
	var transportKind string
	var showVersion bool

	flagSet := pflag.NewFlagSet("sharedscene-peer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the sharedscene config file (default: $SHAREDSCENE_CONFIG, else built-in defaults)")
	flagSet.StringVar(&participantID, "id", "", "participant ID, overriding participant.id from the config")
	flagSet.StringVar(&transportKind, "transport", "", "transport kind (webrtc or memory), overriding transport.kind")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("sharedscene-peer %s\n", version.Full())
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if participantID != "" {
		cfg.Participant.ID = participantID
	}
	if transportKind != "" {
		cfg.Transport.Kind = transportKind
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local := cfg.ParticipantID()

	session, err := newSession(cfg, local, logger)
	if err != nil {
		return fmt.Errorf("creating %s transport: %w", cfg.Transport.Kind, err)
	}

	options, err := cfg.SyncOptions()
	if err != nil {
		return err
	}
	options.Logger = logger

	out := newConsole(os.Stdout)
	syncCoordinator, err := coordinator.New(session, newSceneDelegate(out, logger), options)
	if err != nil {
		return err
	}

	runResult := make(chan error, 1)
	go func() { runResult <- syncCoordinator.Run(ctx) }()

	if err := session.Join(ctx); err != nil {
		return fmt.Errorf("joining session: %w", err)
	}
	logger.Info("joining session",
		"participant", local,
		"transport", cfg.Transport.Kind,
		"signal_dir", cfg.Transport.SignalDir,
	)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	repl := newShell(syncCoordinator, out)
	shellErr := repl.serve(ctx, os.Stdin, interactive)

	leaveContext, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := syncCoordinator.Leave(leaveContext); err != nil && !errors.Is(err, coordinator.ErrInvalidated) {
		logger.Warn("leaving session failed", "error", err)
	}

	if err := <-runResult; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return shellErr
}

// loadConfig honors --config, then SHAREDSCENE_CONFIG, then falls back
// to the built-in defaults so a bare invocation works.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvVar) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

// newLogger builds the process logger. "auto" picks text when w is a
// terminal and JSON otherwise.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == config.LogFormatAuto {
		format = config.LogFormatJSON
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			format = config.LogFormatText
		}
	}

	switch format {
	case config.LogFormatText:
		return slog.New(slog.NewTextHandler(w, options)), nil
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// newSession builds the configured transport. The memory transport is
// a hub with a single member.
func newSession(cfg *config.Config, local participant.ID, logger *slog.Logger) (transport.Session, error) {
	switch cfg.Transport.Kind {
	case config.TransportMemory:
		return transport.NewMemoryHub().NewSession(local), nil
	case config.TransportWebRTC:
		realClock := clock.Real()
		signaler, err := transport.NewDirectorySignaler(cfg.Transport.SignalDir, cfg.Transport.PresenceTTL, realClock)
		if err != nil {
			return nil, err
		}
		return transport.NewWebRTCSession(transport.WebRTCConfig{
			Local:        local,
			Signaler:     signaler,
			ICE:          cfg.ICEConfig(),
			PollInterval: cfg.Transport.PollInterval,
			JoinTimeout:  cfg.Transport.JoinTimeout,
			Clock:        realClock,
			Logger:       logger,
		})
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `sharedscene-peer: join a shared scene and edit it from the terminal.

Peers using the webrtc transport find each other through the signal
directory (transport.signal_dir). Start two peers with the same
directory to share a scene:

Usage:
  sharedscene-peer [flags]

Examples:
  # Run a peer with the defaults
  sharedscene-peer

  # Two peers in one session, with predictable host election
  sharedscene-peer --id 0001-alpha --config scene.yaml
  sharedscene-peer --id 0002-beta --config scene.yaml

  # A single peer with no network
  sharedscene-peer --transport memory

Type "help" at the prompt for the command list.

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// readLines feeds r line by line into the returned channel, which is
// closed at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
