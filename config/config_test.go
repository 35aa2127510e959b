package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xSardius/castmark/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsRequireAdministrator(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats": {"url": "nats://nats.internal:4222"},
		"http": {"listen": ":9090"},
		"registry": {"administrator": "ops", "bucket": "marks_prod"},
		"log": {"level": "debug", "format": "json"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, ":9090", cfg.HTTP.Listen)
	assert.Equal(t, "ops", cfg.Registry.Administrator)
	assert.Equal(t, "marks_prod", cfg.Registry.Bucket)
	// Unset fields keep their defaults
	assert.Equal(t, "castmark.events", cfg.Registry.EventSubjectPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, `{"nats": `)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"nats": {"url": "nats://from-file:4222"},
		"registry": {"administrator": "file-admin"}
	}`)

	t.Setenv("CASTMARK_NATS_URL", "nats://from-env:4222")
	t.Setenv("CASTMARK_ADMINISTRATOR", "env-admin")
	t.Setenv("CASTMARK_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://from-env:4222", cfg.NATS.URL)
	assert.Equal(t, "env-admin", cfg.Registry.Administrator)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvOnly(t *testing.T) {
	t.Setenv("CASTMARK_ADMINISTRATOR", "root")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.Registry.Administrator)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestValidateRejectsBadEnums(t *testing.T) {
	cfg := Default()
	cfg.Registry.Administrator = "ops"

	cfg.Log.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	cfg.Log.Level = "info"
	cfg.Log.Format = "xml"
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestValidateRejectsEmptyStrings(t *testing.T) {
	cfg := Default()
	cfg.Registry.Administrator = "ops"
	cfg.NATS.URL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestValidateAcceptsDefaultsPlusAdmin(t *testing.T) {
	cfg := Default()
	cfg.Registry.Administrator = "ops"
	require.NoError(t, cfg.Validate())
}
