package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	AudioBackendCommand = "command"
	AudioBackendMock    = "mock"
)

// RatePlaceholder in RecordCommand is replaced by SampleRate.
const RatePlaceholder = "{rate}"


// Config contains all runtime settings for the voice session client.
type Config struct {
	ServerURL string `yaml:"server_url"`
	Phone     string `yaml:"phone"`
	AccountID string `yaml:"account_id"`
	Country   string `yaml:"country"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	AudioBackend  string `yaml:"audio_backend"`
	RecordCommand string `yaml:"record_command"`
	PlayCommand   string `yaml:"play_command"`
	SampleRate    int    `yaml:"sample_rate"`

	ControlAddr     string        `yaml:"control_addr"`
	AllowAnyOrigin  bool          `yaml:"allow_any_origin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	MetricsNamespace string `yaml:"metrics_namespace"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ServerURL:        "http://localhost:5001",
		Country:          "IN",
		PollInterval:     2 * time.Second,
		TickInterval:     time.Second,
		RequestTimeout:   30 * time.Second,
		AudioBackend:     AudioBackendCommand,
		RecordCommand:    "arecord -q -f S16_LE -r " + RatePlaceholder + " -c 1 -t raw",
		PlayCommand:      "aplay -q",
		SampleRate:       16000,
		ShutdownTimeout:  5 * time.Second,
		MetricsNamespace: "sentinelcall",
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// Load reads the optional YAML file at path, then applies environment
// overrides and validates the result. An empty path falls back to
// SENTINEL_CONFIG; when that is empty too only defaults and env apply.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) == "" {
		path = stringsTrimSpace("SENTINEL_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.ServerURL = envOrDefault("SENTINEL_SERVER_URL", cfg.ServerURL)
	cfg.Phone = envOrDefault("SENTINEL_PHONE", cfg.Phone)
	cfg.AccountID = envOrDefault("SENTINEL_ACCOUNT_ID", cfg.AccountID)
	cfg.Country = envOrDefault("SENTINEL_COUNTRY", cfg.Country)
	cfg.AudioBackend = strings.ToLower(envOrDefault("SENTINEL_AUDIO_BACKEND", cfg.AudioBackend))
	cfg.RecordCommand = envOrDefault("SENTINEL_RECORD_COMMAND", cfg.RecordCommand)
	cfg.PlayCommand = envOrDefault("SENTINEL_PLAY_COMMAND", cfg.PlayCommand)
	cfg.ControlAddr = envOrDefault("SENTINEL_CONTROL_ADDR", cfg.ControlAddr)
	cfg.MetricsNamespace = envOrDefault("SENTINEL_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("SENTINEL_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("SENTINEL_LOG_FORMAT", cfg.LogFormat)

	var err error
	cfg.PollInterval, err = durationFromEnv("SENTINEL_POLL_INTERVAL", cfg.PollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.TickInterval, err = durationFromEnv("SENTINEL_TICK_INTERVAL", cfg.TickInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("SENTINEL_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("SENTINEL_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRate, err = intFromEnv("SENTINEL_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("SENTINEL_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("SENTINEL_SERVER_URL is required")
	}
	if c.PollInterval < 100*time.Millisecond {
		return errors.New("SENTINEL_POLL_INTERVAL must be at least 100ms")
	}
	if c.TickInterval <= 0 {
		return errors.New("SENTINEL_TICK_INTERVAL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("SENTINEL_REQUEST_TIMEOUT must be positive")
	}
	if c.SampleRate <= 0 {
		return errors.New("SENTINEL_SAMPLE_RATE must be positive")
	}
	switch c.AudioBackend {
	case AudioBackendCommand:
		if len(strings.Fields(c.RecordCommand)) == 0 || len(strings.Fields(c.PlayCommand)) == 0 {
			return errors.New("command audio backend needs SENTINEL_RECORD_COMMAND and SENTINEL_PLAY_COMMAND")
		}
		if rate, ok := recorderRate(c.RecordArgs()); ok && rate != c.SampleRate {
			return fmt.Errorf("SENTINEL_RECORD_COMMAND records at %d Hz but SENTINEL_SAMPLE_RATE is %d", rate, c.SampleRate)
		}
	case AudioBackendMock:
	default:
		return fmt.Errorf("invalid SENTINEL_AUDIO_BACKEND: %q (expected command|mock)", c.AudioBackend)
	}
	return nil
}

// RecordArgs splits RecordCommand into argv and fills in the sample rate.
func (c Config) RecordArgs() []string {
	args := strings.Fields(c.RecordCommand)
	rate := strconv.Itoa(c.SampleRate)
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, RatePlaceholder, rate)
	}
	return args
}

// recorderRate finds an explicit -r/--rate option in an arecord style argv.
func recorderRate(args []string) (int, bool) {
	for i, a := range args {
		var v string
		switch {
		case (a == "-r" || a == "--rate") && i+1 < len(args):
			v = args[i+1]
		case strings.HasPrefix(a, "--rate="):
			v = strings.TrimPrefix(a, "--rate=")
		default:
			continue
		}
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// PlayArgs splits PlayCommand into argv.
func (c Config) PlayArgs() []string { return strings.Fields(c.PlayCommand) }

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
