package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/plus3/reflecs/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := config.Decode(strings.NewReader(`
log:
  level: debug
registry:
  auto_register: false
stress:
  entities: 50
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Encoding, "unset keys keep defaults")
	assert.False(t, cfg.Registry.AutoRegister)
	assert.Equal(t, 50, cfg.Stress.Entities)
	assert.Equal(t, 100, cfg.Stress.Iterations)
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := config.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := config.Decode(strings.NewReader("registry:\n  autoregister: true\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflecs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  encoding: json\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Encoding)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	logger, err := config.NewLogger(config.Log{Level: "warn", Encoding: "json"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = config.NewLogger(config.Log{Level: "loud"})
	assert.Error(t, err)
}
