package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// DictationConfig controls the live transcript hub and the merge engine's
// comparison policy.
type DictationConfig struct {
	Enabled       bool   `yaml:"enabled"`
	MaxChars      int    `yaml:"max_chars"`
	FoldCase      bool   `yaml:"fold_case"`
	TrailingPunct string `yaml:"trailing_punct"`
	IdleTimeoutMS int    `yaml:"session_idle_timeout_ms"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Dictation   DictationConfig `yaml:"dictation"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxscribe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Dictation: DictationConfig{
			Enabled:       true,
			MaxChars:      4000,
			FoldCase:      false,
			TrailingPunct: ".,!?;:",
			IdleTimeoutMS: 300000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXSCRIBE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXSCRIBE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXSCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXSCRIBE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXSCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXSCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXSCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "VOXSCRIBE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXSCRIBE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXSCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXSCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXSCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXSCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXSCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXSCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Dictation.Enabled, "VOXSCRIBE_DICTATION_ENABLED")
	overrideInt(&cfg.Dictation.MaxChars, "VOXSCRIBE_DICTATION_MAX_CHARS")
	overrideBool(&cfg.Dictation.FoldCase, "VOXSCRIBE_DICTATION_FOLD_CASE")
	overrideString(&cfg.Dictation.TrailingPunct, "VOXSCRIBE_DICTATION_TRAILING_PUNCT")
	overrideInt(&cfg.Dictation.IdleTimeoutMS, "VOXSCRIBE_DICTATION_IDLE_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Dictation.Enabled {
		// The merge engine degrades a non-positive budget to an empty
		// transcript; reject it here so a misconfigured deployment never
		// runs with a useless view.
		if cfg.Dictation.MaxChars <= 0 {
			return errors.New("dictation.max_chars must be positive")
		}
		if cfg.Dictation.IdleTimeoutMS <= 0 {
			return errors.New("dictation.session_idle_timeout_ms must be positive")
		}
	}
	return nil
}
