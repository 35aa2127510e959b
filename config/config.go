// Package config loads and validates the castmark service configuration.
//
// Configuration is read from a JSON file, then overridden by CASTMARK_*
// environment variables, then validated against an embedded JSON schema plus
// semantic checks. Configuration is static for the process lifetime.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/0xSardius/castmark/errors"
)

// Config is the top-level service configuration
type Config struct {
	NATS     NATSConfig     `json:"nats"`
	HTTP     HTTPConfig     `json:"http"`
	Registry RegistryConfig `json:"registry"`
	Log      LogConfig      `json:"log"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	URL string `json:"url"`
}

// HTTPConfig configures the HTTP surface
type HTTPConfig struct {
	Listen string `json:"listen"`
}

// RegistryConfig configures the registry itself
type RegistryConfig struct {
	// Administrator is the principal allowed to pause/unpause and to
	// remove any mark. Required; identity bootstrap is external.
	Administrator string `json:"administrator"`
	// Bucket is the KV bucket marks persist to
	Bucket string `json:"bucket"`
	// EventSubjectPrefix is the NATS subject prefix for domain events
	EventSubjectPrefix string `json:"event_subject_prefix"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Default returns the configuration defaults. The administrator has no
// default: it must be supplied explicitly.
func Default() *Config {
	return &Config{
		NATS:     NATSConfig{URL: "nats://localhost:4222"},
		HTTP:     HTTPConfig{Listen: ":8080"},
		Registry: RegistryConfig{Bucket: "castmark_marks", EventSubjectPrefix: "castmark.events"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// schema validates shape and enums before semantic checks run
const schema = `{
	"type": "object",
	"properties": {
		"nats": {
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1}
			}
		},
		"http": {
			"type": "object",
			"properties": {
				"listen": {"type": "string", "minLength": 1}
			}
		},
		"registry": {
			"type": "object",
			"properties": {
				"administrator": {"type": "string"},
				"bucket": {"type": "string", "minLength": 1},
				"event_subject_prefix": {"type": "string", "minLength": 1}
			}
		},
		"log": {
			"type": "object",
			"properties": {
				"level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
				"format": {"type": "string", "enum": ["text", "json"]}
			}
		}
	}
}`

// Load reads configuration from an optional file path, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies CASTMARK_* environment variables over the loaded
// configuration.
func applyEnvOverrides(cfg *Config) {
	setFromEnv("CASTMARK_NATS_URL", &cfg.NATS.URL)
	setFromEnv("CASTMARK_HTTP_LISTEN", &cfg.HTTP.Listen)
	setFromEnv("CASTMARK_ADMINISTRATOR", &cfg.Registry.Administrator)
	setFromEnv("CASTMARK_BUCKET", &cfg.Registry.Bucket)
	setFromEnv("CASTMARK_EVENT_SUBJECT_PREFIX", &cfg.Registry.EventSubjectPrefix)
	setFromEnv("CASTMARK_LOG_LEVEL", &cfg.Log.Level)
	setFromEnv("CASTMARK_LOG_FORMAT", &cfg.Log.Format)
}

func setFromEnv(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// Validate checks the configuration against the schema and semantic rules.
func (c *Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.WrapFatal(err, "config", "Validate", "marshal config")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapFatal(err, "config", "Validate", "schema evaluation")
	}
	if !result.Valid() {
		msg := "schema violations:"
		for _, violation := range result.Errors() {
			msg += " " + violation.String() + ";"
		}
		return errors.WrapInvalid(
			fmt.Errorf("%s %w", msg, errors.ErrInvalidConfig),
			"config", "Validate", "schema validation")
	}

	if c.Registry.Administrator == "" {
		return errors.WrapInvalid(
			fmt.Errorf("registry.administrator is required: %w", errors.ErrMissingConfig),
			"config", "Validate", "administrator validation")
	}
	return nil
}
