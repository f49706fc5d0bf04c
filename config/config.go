package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/odinbridge/native"
)

// Defaults used by Default.
const (
	DefaultServer        = "https://gateway.odin.4players.io"
	DefaultSampleRate    = 48000
	DefaultChannels      = 1
	DefaultTokenLifetime = 300 * time.Second
	DefaultUserDataText  = ""

	// client id prefix, completed with a device id
	DefaultCompany = "opd-ai"
	DefaultProduct = "odinbridge"
)

// Environment variables read by ApplyEnv.
const (
	EnvAccessKey   = "ODIN_ACCESS_KEY"
	EnvServer      = "ODIN_SERVER"
	EnvClientID    = "ODIN_CLIENT_ID"
	EnvUserData    = "ODIN_USER_DATA"
	EnvLibraryPath = "ODIN_LIBRARY_PATH"
	EnvVerbose     = "ODIN_VERBOSE"
)

var supportedSampleRates = map[uint32]bool{
	8000:  true,
	12000: true,
	16000: true,
	24000: true,
	44100: true,
	48000: true,
}

// Config holds everything the runtime reads at join time.
type Config struct {
	Verbose     bool   `yaml:"verbose"`
	AccessKey   string `yaml:"access_key"`
	ClientID    string `yaml:"client_id"`
	Server      string `yaml:"server"`
	UserData    string `yaml:"user_data"`
	LibraryPath string `yaml:"library_path"`

	Audio    AudioConfig    `yaml:"audio"`
	Events   EventConfig    `yaml:"events"`
	Token    TokenConfig    `yaml:"token"`
	APM      APMConfig      `yaml:"apm"`
	Playback PlaybackConfig `yaml:"playback"`
}

// AudioConfig holds the local (device) and remote stream formats.
type AudioConfig struct {
	DeviceSampleRate uint32 `yaml:"device_sample_rate"`
	DeviceChannels   uint8  `yaml:"device_channels"`
	RemoteSampleRate uint32 `yaml:"remote_sample_rate"`
	RemoteChannels   uint8  `yaml:"remote_channels"`
}

// EventConfig toggles which registry changes are forwarded to listeners.
type EventConfig struct {
	PeerJoined             bool `yaml:"peer_joined"`
	PeerLeft               bool `yaml:"peer_left"`
	PeerUpdated            bool `yaml:"peer_updated"`
	MediaAdded             bool `yaml:"media_added"`
	MediaRemoved           bool `yaml:"media_removed"`
	MessageReceived        bool `yaml:"message_received"`
	ConnectionStateChanged bool `yaml:"connection_state_changed"`
}

// TokenConfig controls locally generated room tokens.
type TokenConfig struct {
	Lifetime time.Duration `yaml:"lifetime"`
	Audience string        `yaml:"audience"`
}

// APMConfig mirrors native.APMConfig with a textual noise suppression level.
type APMConfig struct {
	VoiceActivityDetection bool   `yaml:"voice_activity_detection"`
	EchoCanceller          bool   `yaml:"echo_canceller"`
	HighPassFilter         bool   `yaml:"high_pass_filter"`
	PreAmplifier           bool   `yaml:"pre_amplifier"`
	NoiseSuppression       string `yaml:"noise_suppression"`
	TransientSuppressor    bool   `yaml:"transient_suppressor"`
}

// PlaybackConfig controls the per-media playback buffers.
type PlaybackConfig struct {
	// Create makes the runtime start a playback for every remote media.
	Create        bool          `yaml:"create"`
	PacketSize    int           `yaml:"packet_size"`
	Lookahead     int           `yaml:"lookahead"`
	BufferLength  int           `yaml:"buffer_length"`
	FlushDelay    time.Duration `yaml:"flush_delay"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	// CheckStatus polls the playing status every StatusInterval after
	// StatusDelay.
	CheckStatus    bool          `yaml:"check_status"`
	StatusDelay    time.Duration `yaml:"status_delay"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// Default returns a config with the engine defaults.
func Default() *Config {
	return &Config{
		Server:   DefaultServer,
		UserData: DefaultUserDataText,
		Audio: AudioConfig{
			DeviceSampleRate: DefaultSampleRate,
			DeviceChannels:   DefaultChannels,
			RemoteSampleRate: DefaultSampleRate,
			RemoteChannels:   DefaultChannels,
		},
		Events: EventConfig{
			PeerJoined:             true,
			PeerLeft:               true,
			PeerUpdated:            true,
			MediaAdded:             true,
			MediaRemoved:           true,
			MessageReceived:        true,
			ConnectionStateChanged: true,
		},
		Token: TokenConfig{
			Lifetime: DefaultTokenLifetime,
			Audience: "gateway",
		},
		APM: APMConfig{
			VoiceActivityDetection: true,
			EchoCanceller:          true,
			HighPassFilter:         false,
			PreAmplifier:           false,
			NoiseSuppression:       native.NoiseSuppressionModerate.String(),
			TransientSuppressor:    false,
		},
		Playback: PlaybackConfig{
			Create:         true,
			PacketSize:     960,
			Lookahead:      3840,
			BufferLength:   4 * 3840,
			FlushDelay:     500 * time.Millisecond,
			FlushInterval:  20 * time.Millisecond,
			CheckStatus:    true,
			StatusInterval: 200 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file on top of the defaults. String values may
// reference environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.AccessKey = os.ExpandEnv(cfg.AccessKey)
	cfg.Server = os.ExpandEnv(cfg.Server)
	cfg.ClientID = os.ExpandEnv(cfg.ClientID)
	cfg.UserData = os.ExpandEnv(cfg.UserData)
	cfg.LibraryPath = os.ExpandEnv(cfg.LibraryPath)

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
		"server":   cfg.Server,
	}).Debug("Loaded configuration file")

	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv loads the given dotenv files (".env" when none are given; missing
// files are ignored) and then overrides fields from ODIN_* variables.
func (c *Config) ApplyEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env files: %w", err)
	}

	if v, ok := os.LookupEnv(EnvAccessKey); ok {
		c.AccessKey = v
	}
	if v, ok := os.LookupEnv(EnvServer); ok {
		c.Server = v
	}
	if v, ok := os.LookupEnv(EnvClientID); ok {
		c.ClientID = v
	}
	if v, ok := os.LookupEnv(EnvUserData); ok {
		c.UserData = v
	}
	if v, ok := os.LookupEnv(EnvLibraryPath); ok {
		c.LibraryPath = v
	}
	if v, ok := os.LookupEnv(EnvVerbose); ok {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		c.Verbose = verbose
	}
	return nil
}

// Validate checks every value the runtime depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: server %q is not an absolute URL", ErrInvalidConfig, c.Server)
	}
	if c.AccessKey != "" {
		if err := ValidateAccessKey(c.AccessKey); err != nil {
			return err
		}
	}
	if err := validateFormat("device", c.Audio.DeviceSampleRate, c.Audio.DeviceChannels); err != nil {
		return err
	}
	if err := validateFormat("remote", c.Audio.RemoteSampleRate, c.Audio.RemoteChannels); err != nil {
		return err
	}
	if _, err := native.ParseNoiseSuppressionLevel(c.APM.NoiseSuppression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Token.Lifetime <= 0 {
		return fmt.Errorf("%w: token lifetime must be positive", ErrInvalidConfig)
	}

	p := c.Playback
	switch {
	case p.PacketSize <= 0:
		return fmt.Errorf("%w: playback packet size must be positive", ErrInvalidConfig)
	case p.Lookahead < p.PacketSize:
		return fmt.Errorf("%w: playback lookahead %d is smaller than one packet", ErrInvalidConfig, p.Lookahead)
	case p.BufferLength < p.Lookahead:
		return fmt.Errorf("%w: playback buffer %d is smaller than the lookahead", ErrInvalidConfig, p.BufferLength)
	case p.FlushInterval <= 0 || p.StatusInterval <= 0:
		return fmt.Errorf("%w: playback intervals must be positive", ErrInvalidConfig)
	case p.FlushDelay < 0 || p.StatusDelay < 0:
		return fmt.Errorf("%w: playback delays must not be negative", ErrInvalidConfig)
	}
	return nil
}

func validateFormat(name string, rate uint32, channels uint8) error {
	if !supportedSampleRates[rate] {
		return fmt.Errorf("%w: unsupported %s sample rate %d", ErrInvalidConfig, name, rate)
	}
	if channels != 1 && channels != 2 {
		return fmt.Errorf("%w: %s channels must be 1 or 2, got %d", ErrInvalidConfig, name, channels)
	}
	return nil
}

// NativeAPM converts the APM section for the native layer.
func (c *Config) NativeAPM() native.APMConfig {
	level, err := native.ParseNoiseSuppressionLevel(c.APM.NoiseSuppression)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Config.NativeAPM",
			"level":    c.APM.NoiseSuppression,
		}).Warn("Unknown noise suppression level, disabling")
	}
	return native.APMConfig{
		VoiceActivityDetection: c.APM.VoiceActivityDetection,
		EchoCanceller:          c.APM.EchoCanceller,
		HighPassFilter:         c.APM.HighPassFilter,
		PreAmplifier:           c.APM.PreAmplifier,
		NoiseSuppression:       level,
		TransientSuppressor:    c.APM.TransientSuppressor,
	}
}

// DefaultClientID returns "<company>.<product>.<device id>" with a fresh
// random device id.
func DefaultClientID() string {
	return strings.Join([]string{DefaultCompany, DefaultProduct, uuid.NewString()}, ".")
}

// EnsureClientID fills in ClientID when it is empty and returns it.
func (c *Config) EnsureClientID() string {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID()
	}
	return c.ClientID
}
