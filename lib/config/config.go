// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/sharedscene/coordinator"
	"github.com/bureau-foundation/sharedscene/lib/anchorpack"
	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/transport"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "SHAREDSCENE_CONFIG"

// Transport kinds.
const (
	// TransportWebRTC forms a WebRTC mesh with peers found through
	// the signal directory.
	TransportWebRTC = "webrtc"

	// TransportMemory runs a single-process session with no network.
	// Useful for trying the peer CLI on its own.
	TransportMemory = "memory"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"

	// LogFormatAuto selects text on a terminal and JSON otherwise.
	LogFormatAuto = "auto"
)

// Config is the complete configuration of a sharedscene peer.
type Config struct {
	// Participant describes who this peer is and what it supports.
	Participant ParticipantConfig `yaml:"participant"`

	// Sync tunes the sync coordinator.
	Sync SyncConfig `yaml:"sync"`

	// Transport selects and configures the group channel.
	Transport TransportConfig `yaml:"transport"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`
}

// ParticipantConfig is the local identity and capability advertisement.
type ParticipantConfig struct {
	// ID is the participant ID. Empty generates a random one at
	// startup. Host election picks the smallest ID, so a fixed ID
	// makes the host predictable.
	ID string `yaml:"id"`

	// AppName and Platform are advertised in the handshake.
	AppName  string `yaml:"app_name"`
	Platform string `yaml:"platform"`

	SupportsModelSync            bool `yaml:"supports_model_sync"`
	SupportsWorldMap             bool `yaml:"supports_world_map"`
	SupportsUnreliableTransforms bool `yaml:"supports_unreliable_transforms"`
}

// SyncConfig mirrors [coordinator.Options].
type SyncConfig struct {
	// TransformRateHz caps live transform sends per model. Negative
	// disables the limit.
	// Default: 30
	TransformRateHz float64 `yaml:"transform_rate_hz"`

	// MirrorTransforms also sends live transforms reliably.
	// Default: false
	MirrorTransforms bool `yaml:"mirror_transforms"`

	// ResyncDelays is the late-join resend schedule. An empty list
	// disables resends.
	// Default: [1.2s, 1.8s]
	ResyncDelays []time.Duration `yaml:"resync_delays"`

	// JoinerRepeatDelay is the wait before the host repeats the full
	// sync to new members. Negative disables the repeat.
	// Default: 600ms
	JoinerRepeatDelay time.Duration `yaml:"joiner_repeat_delay"`

	// AnchorCompression is none, lz4 or zstd.
	// Default: zstd
	AnchorCompression string `yaml:"anchor_compression"`
}

// TransportConfig configures the group channel.
type TransportConfig struct {
	// Kind is webrtc or memory.
	// Default: webrtc
	Kind string `yaml:"kind"`

	// SignalDir is the shared directory holding presence and SDP
	// files. Every peer of one session must use the same directory.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/sharedscene/default
	SignalDir string `yaml:"signal_dir"`

	// PollInterval is how often the signal directory is scanned.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval"`

	// PresenceTTL is how long a presence file stays valid without a
	// refresh. Must exceed PollInterval.
	// Default: 10s
	PresenceTTL time.Duration `yaml:"presence_ttl"`

	// JoinTimeout bounds how long joining waits for the peers already
	// present to connect before the session counts as joined.
	// Default: 10s
	JoinTimeout time.Duration `yaml:"join_timeout"`

	// ICEServers lists STUN/TURN servers. Empty gathers host
	// candidates only.
	ICEServers []ICEServerConfig `yaml:"ice_servers"`
}

// ICEServerConfig is one STUN or TURN server.
type ICEServerConfig struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text, json or auto.
	// Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration. The loaded file is
// merged over it, so every field has a sensible value even when the
// file sets only a few.
func Default() *Config {
	return &Config{
		Participant: ParticipantConfig{
			AppName:                      "sharedscene-peer",
			Platform:                     runtime.GOOS,
			SupportsModelSync:            true,
			SupportsWorldMap:             true,
			SupportsUnreliableTransforms: true,
		},
		Sync: SyncConfig{
			TransformRateHz:   coordinator.DefaultTransformRateHz,
			ResyncDelays:      append([]time.Duration(nil), coordinator.DefaultResyncDelays...),
			JoinerRepeatDelay: coordinator.DefaultJoinerRepeatDelay,
			AnchorCompression: anchorpack.CompressionZstd.String(),
		},
		Transport: TransportConfig{
			Kind:         TransportWebRTC,
			SignalDir:    "${XDG_RUNTIME_DIR:-/tmp}/sharedscene/default",
			PollInterval: transport.DefaultPollInterval,
			PresenceTTL:  transport.DefaultPresenceTTL,
			JoinTimeout:  transport.DefaultJoinTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatAuto,
		},
	}
}

// Load loads configuration from the file named by SHAREDSCENE_CONFIG.
// There is no search path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your sharedscene config file, or use --config", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults. Files
// ending in .json or .jsonc may carry comments and trailing commas;
// anything else is parsed as YAML. The only environment lookup is
// ${VAR} expansion in the signal directory path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the same decoder applies once
		// comments are stripped.
		data = jsonc.ToJSON(data)
	}

	// Lists in the file replace the defaults; an explicit empty
	// resync_delays disables resends.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Transport.SignalDir = expandVars(c.Transport.SignalDir, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if id := c.Participant.ID; id != "" {
		if strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") || strings.TrimSpace(id) != id {
			errs = append(errs, fmt.Errorf("participant.id %q must not contain path separators, start with '.', or carry surrounding spaces", id))
		}
	}

	if math.IsNaN(c.Sync.TransformRateHz) || math.IsInf(c.Sync.TransformRateHz, 0) {
		errs = append(errs, fmt.Errorf("sync.transform_rate_hz must be a finite number"))
	}
	for index, delay := range c.Sync.ResyncDelays {
		if delay <= 0 {
			errs = append(errs, fmt.Errorf("sync.resync_delays[%d] must be positive, got %s", index, delay))
		}
	}
	if _, err := anchorpack.ParseCompression(c.Sync.AnchorCompression); err != nil {
		errs = append(errs, fmt.Errorf("sync.anchor_compression: %w", err))
	}

	switch c.Transport.Kind {
	case TransportMemory:
	case TransportWebRTC:
		if c.Transport.SignalDir == "" {
			errs = append(errs, fmt.Errorf("transport.signal_dir is required for the webrtc transport"))
		}
		if c.Transport.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("transport.poll_interval must be positive"))
		}
		if c.Transport.PresenceTTL <= c.Transport.PollInterval {
			errs = append(errs, fmt.Errorf("transport.presence_ttl (%s) must exceed transport.poll_interval (%s)",
				c.Transport.PresenceTTL, c.Transport.PollInterval))
		}
		if c.Transport.JoinTimeout <= 0 {
			errs = append(errs, fmt.Errorf("transport.join_timeout must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind must be one of: %v", []string{TransportWebRTC, TransportMemory}))
	}
	for index, server := range c.Transport.ICEServers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("transport.ice_servers[%d] has no urls", index))
		}
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON, LogFormatAuto:
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", []string{LogFormatText, LogFormatJSON, LogFormatAuto}))
	}

	return errors.Join(errs...)
}

// ParticipantID returns the configured ID, or a fresh random one when
// none is configured. Call it once per process.
func (c *Config) ParticipantID() participant.ID {
	if c.Participant.ID != "" {
		return participant.ID(c.Participant.ID)
	}
	return participant.NewID()
}

// Capabilities returns the handshake advertisement.
func (c *Config) Capabilities() capability.Set {
	return capability.Set{
		ProtocolVersion:              message.ProtocolVersion,
		AppName:                      c.Participant.AppName,
		Platform:                     c.Participant.Platform,
		SupportsModelSync:            c.Participant.SupportsModelSync,
		SupportsWorldAnchor:          c.Participant.SupportsWorldMap,
		SupportsUnreliableTransforms: c.Participant.SupportsUnreliableTransforms,
	}
}

// SyncOptions converts the sync section to coordinator options. Clock
// and Logger are left for the caller.
func (c *Config) SyncOptions() (coordinator.Options, error) {
	compression, err := anchorpack.ParseCompression(c.Sync.AnchorCompression)
	if err != nil {
		return coordinator.Options{}, fmt.Errorf("sync.anchor_compression: %w", err)
	}
	var delays []time.Duration
	if c.Sync.ResyncDelays != nil {
		delays = append([]time.Duration{}, c.Sync.ResyncDelays...)
	}
	return coordinator.Options{
		Capabilities:      c.Capabilities(),
		TransformRateHz:   c.Sync.TransformRateHz,
		MirrorTransforms:  c.Sync.MirrorTransforms,
		ResyncDelays:      delays,
		JoinerRepeatDelay: c.Sync.JoinerRepeatDelay,
		AnchorCompression: compression,
	}, nil
}

// ICEConfig converts the configured ICE servers.
func (c *Config) ICEConfig() transport.ICEConfig {
	servers := make([]transport.ICEServer, 0, len(c.Transport.ICEServers))
	for _, server := range c.Transport.ICEServers {
		servers = append(servers, transport.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return transport.NewICEConfig(servers...)
}

// LogLevel parses the configured level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
