package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Engine names accepted by the engine and engines keys.
const (
	EngineFasterWhisper = "faster-whisper"
	EngineWhisperCpp    = "whisper.cpp"
	EngineOpenAI        = "openai"
)

type Config struct {
	Host string
	Port int

	LogLevel  string
	LogFormat string

	TempDir        string
	MaxUploadBytes int64
	ValidateAudio  bool

	Engine  string   // default engine for requests that don't name one
	Engines []string // engines started at boot

	ModelSize   string
	Device      string
	ComputeType string
	BeamSize    int
	VADFilter   bool
	Python      string

	WhisperURL     string
	WhisperConvert bool

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	MaxConcurrent int

	DBPath      string
	JobsEnabled bool

	AuthEnabled        bool
	JWTSecret          string
	JWTSecretGenerated bool
	AdminUsername      string
	AdminPassword      string

	CORSOrigins     []string
	RateLimit       int
	ShutdownTimeout time.Duration
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal-free Get calls.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("temp_dir", os.TempDir())
	v.SetDefault("max_upload_bytes", 0)
	v.SetDefault("validate_audio", false)
	v.SetDefault("engine", EngineFasterWhisper)
	v.SetDefault("engines", "")
	v.SetDefault("model_size", "small")
	v.SetDefault("device", "cpu")
	v.SetDefault("compute_type", "int8")
	v.SetDefault("beam_size", 5)
	v.SetDefault("vad_filter", false)
	v.SetDefault("python", "python3")
	v.SetDefault("whisper_url", "")
	v.SetDefault("whisper_convert", true)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", "")
	v.SetDefault("openai_model", "whisper-1")
	v.SetDefault("max_concurrent", 0)
	v.SetDefault("db_path", "")
	v.SetDefault("jobs_enabled", false)
	v.SetDefault("auth_enabled", false)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_password", "admin")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("shutdown_timeout", 15*time.Second)
}

// Load reads the optional config file and environment into a Config.
// configFile may be empty, in which case ./config.yaml is used when present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		TempDir:        v.GetString("temp_dir"),
		MaxUploadBytes: v.GetInt64("max_upload_bytes"),
		ValidateAudio:  v.GetBool("validate_audio"),
		Engine:         strings.TrimSpace(v.GetString("engine")),
		ModelSize:      v.GetString("model_size"),
		Device:         v.GetString("device"),
		ComputeType:    v.GetString("compute_type"),
		BeamSize:       v.GetInt("beam_size"),
		VADFilter:      v.GetBool("vad_filter"),
		Python:         v.GetString("python"),
		WhisperURL:     v.GetString("whisper_url"),
		WhisperConvert: v.GetBool("whisper_convert"),
		OpenAIKey:      v.GetString("openai_api_key"),
		OpenAIBaseURL:  v.GetString("openai_base_url"),
		OpenAIModel:    v.GetString("openai_model"),
		MaxConcurrent:  v.GetInt("max_concurrent"),
		DBPath:         v.GetString("db_path"),
		JobsEnabled:    v.GetBool("jobs_enabled"),
		AuthEnabled:    v.GetBool("auth_enabled"),
		JWTSecret:      v.GetString("jwt_secret"),
		AdminUsername:  v.GetString("admin_username"),
		AdminPassword:  v.GetString("admin_password"),
		RateLimit:      v.GetInt("rate_limit"),
	}
	cfg.ShutdownTimeout = v.GetDuration("shutdown_timeout")

	cfg.Engines = splitList(v.GetString("engines"))
	if len(cfg.Engines) == 0 {
		cfg.Engines = []string{cfg.Engine}
	}

	// CORS origins: comma-separated list or "*" (default)
	cfg.CORSOrigins = splitList(v.GetString("cors_origins"))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	if cfg.AuthEnabled && cfg.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
		cfg.JWTSecretGenerated = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks engine names and settings that depend on each other.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must not be negative")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must not be negative")
	}

	started := false
	for _, name := range c.Engines {
		switch name {
		case EngineFasterWhisper:
			if c.ModelSize == "" {
				return fmt.Errorf("model_size is required for %s", name)
			}
		case EngineWhisperCpp:
			if c.WhisperURL == "" {
				return fmt.Errorf("whisper_url is required for %s", name)
			}
		case EngineOpenAI:
			if c.OpenAIKey == "" && c.OpenAIBaseURL == "" {
				return fmt.Errorf("openai_api_key or openai_base_url is required for %s", name)
			}
		default:
			return fmt.Errorf("unknown engine %q (available: %s, %s, %s)",
				name, EngineFasterWhisper, EngineWhisperCpp, EngineOpenAI)
		}
		if name == c.Engine {
			started = true
		}
	}
	if !started {
		return fmt.Errorf("default engine %q is not listed in engines", c.Engine)
	}

	if c.AuthEnabled && c.DBPath == "" {
		return fmt.Errorf("auth_enabled requires db_path")
	}
	if c.JobsEnabled && c.DBPath == "" {
		return fmt.Errorf("jobs_enabled requires db_path")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
