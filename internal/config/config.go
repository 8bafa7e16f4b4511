package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/convoflow/pkg/credentials"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CONVOFLOW_"

type (
	// Config holds the settings of a convoflow server
	Config struct {
		Addr            string        `yaml:"addr"`
		FlowsDir        string        `yaml:"flowsDir"`
		StrictFlows     bool          `yaml:"strictFlows"`
		LogLevel        string        `yaml:"logLevel"`
		LogFormat       string        `yaml:"logFormat"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
		RestartKeywords []string      `yaml:"restartKeywords"`
		AIBackend       string        `yaml:"aiBackend"`
		ResumeInterval  time.Duration `yaml:"resumeInterval"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

		Redis       RedisConfig       `yaml:"redis"`
		WhatsApp    WhatsAppConfig    `yaml:"whatsapp"`
		Credentials CredentialsConfig `yaml:"credentials"`
		Redact      []string          `yaml:"redact"`
	}

	// RedisConfig enables the Redis stores when Addr is set
	RedisConfig struct {
		Addr       string        `yaml:"addr"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		Prefix     string        `yaml:"prefix"`
		SessionTTL time.Duration `yaml:"sessionTtl"`
	}

	// WhatsAppConfig enables the WhatsApp channel when PhoneNumberID is set
	WhatsAppConfig struct {
		PhoneNumberID string `yaml:"phoneNumberId"`
		AccessToken   string `yaml:"accessToken"`
		VerifyToken   string `yaml:"verifyToken"`
		BotID         string `yaml:"botId"`
		BaseURL       string `yaml:"baseUrl"`
	}

	// CredentialsConfig holds the sealing keys and the sealed AI providers
	CredentialsConfig struct {
		Key          string                 `yaml:"key"`
		FallbackKeys []string               `yaml:"fallbackKeys"`
		EncryptVars  bool                   `yaml:"encryptVariables"`
		Providers    []credentials.Provider `yaml:"providers"`
	}
)

const (
	DefaultAddr            = ":8080"
	DefaultFlowsDir        = "flows"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultAIBackend       = "http"
	DefaultResumeInterval  = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultRedisPrefix     = "convoflow:"
	DefaultSessionTTL      = 30 * 24 * time.Hour
)

var (
	ErrMissingAddr       = errors.New("listen address is required")
	ErrMissingFlowsDir   = errors.New("flows directory is required")
	ErrInvalidLogFormat  = errors.New("log format must be text or json")
	ErrInvalidInterval   = errors.New("resume interval must be positive")
	ErrInvalidAIBackend  = errors.New("ai backend must be http or eino")
	ErrInvalidRedisDB    = errors.New("redis db cannot be negative")
	ErrMissingWhatsApp   = errors.New("whatsapp requires access token, verify token and bot id")
	ErrMissingSealingKey = errors.New("credentials key is required for providers and encrypted variables")
)

// NewDefaultConfig creates a configuration that serves ./flows from memory
func NewDefaultConfig() *Config {
	return &Config{
		Addr:            DefaultAddr,
		FlowsDir:        DefaultFlowsDir,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		AIBackend:       DefaultAIBackend,
		AllowedOrigins:  []string{"*"},
		ResumeInterval:  DefaultResumeInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
		Redis: RedisConfig{
			Prefix:     DefaultRedisPrefix,
			SessionTTL: DefaultSessionTTL,
		},
	}
}

// Load reads the optional YAML file at path, then a .env file in the working
// directory, then CONVOFLOW_* variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func setString(dst *string, name string) {
	if v, ok := env(name); ok {
		*dst = v
	}
}

func setList(dst *[]string, name string) {
	if v, ok := env(name); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setDuration(dst *time.Duration, name string) error {
	if v, ok := env(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

func setBool(dst *bool, name string) error {
	if v, ok := env(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
	}
	return nil
}

// LoadFromEnv overrides values from CONVOFLOW_* environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	setString(&c.Addr, "ADDR")
	setString(&c.FlowsDir, "FLOWS_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.AIBackend, "AI_BACKEND")
	setList(&c.AllowedOrigins, "ALLOWED_ORIGINS")
	setList(&c.RestartKeywords, "RESTART_KEYWORDS")
	setList(&c.Redact, "REDACT")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Redis.Prefix, "REDIS_PREFIX")
	if v, ok := env("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB: %w", EnvPrefix, err)
		}
		c.Redis.DB = db
	}

	setString(&c.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setString(&c.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setString(&c.WhatsApp.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	setString(&c.WhatsApp.BotID, "WHATSAPP_BOT_ID")
	setString(&c.WhatsApp.BaseURL, "WHATSAPP_BASE_URL")

	setString(&c.Credentials.Key, "ENCRYPTION_KEY")
	setList(&c.Credentials.FallbackKeys, "ENCRYPTION_FALLBACK_KEYS")

	for name, dst := range map[string]*time.Duration{
		"RESUME_INTERVAL":   &c.ResumeInterval,
		"SHUTDOWN_TIMEOUT":  &c.ShutdownTimeout,
		"REDIS_SESSION_TTL": &c.Redis.SessionTTL,
	} {
		if err := setDuration(dst, name); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*bool{
		"STRICT_FLOWS":      &c.StrictFlows,
		"ENCRYPT_VARIABLES": &c.Credentials.EncryptVars,
	} {
		if err := setBool(dst, name); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Addr == "" {
		return ErrMissingAddr
	}
	if c.FlowsDir == "" {
		return ErrMissingFlowsDir
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		return ErrInvalidLogFormat
	}
	if c.ResumeInterval <= 0 {
		return ErrInvalidInterval
	}
	if b := strings.ToLower(c.AIBackend); b != "http" && b != "eino" {
		return ErrInvalidAIBackend
	}
	if c.Redis.DB < 0 {
		return ErrInvalidRedisDB
	}
	if c.WhatsApp.PhoneNumberID != "" {
		w := c.WhatsApp
		if w.AccessToken == "" || w.VerifyToken == "" || w.BotID == "" {
			return ErrMissingWhatsApp
		}
	}
	needsKey := len(c.Credentials.Providers) > 0 || c.Credentials.EncryptVars
	if needsKey && c.Credentials.Key == "" {
		return ErrMissingSealingKey
	}
	if c.Credentials.Key != "" {
		if _, err := c.Sealer(); err != nil {
			return err
		}
	}
	return nil
}

// Sealer builds the credentials sealer from the configured keys. It returns
// nil without error when no key is set.
func (c *Config) Sealer() (*credentials.Sealer, error) {
	if c.Credentials.Key == "" {
		return nil, nil
	}
	active, err := credentials.ParseKey(c.Credentials.Key)
	if err != nil {
		return nil, fmt.Errorf("credentials key: %w", err)
	}
	var fallback [][]byte
	for i, k := range c.Credentials.FallbackKeys {
		key, err := credentials.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return credentials.NewSealer(active, fallback...)
}

// RedisEnabled reports whether the Redis stores are configured.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

// WhatsAppEnabled reports whether the WhatsApp channel is configured.
func (c *Config) WhatsAppEnabled() bool { return c.WhatsApp.PhoneNumberID != "" }
