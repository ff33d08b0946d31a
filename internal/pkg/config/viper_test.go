package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViper_FromBytes(t *testing.T) {
	cfg, err := NewViperFromBytes("yaml", []byte(`
modules:
  notification:
    cache_ttl_seconds: 300
    send_backoff_base_ms: 500
    consumer_names: "a, b,,c"
    webhook_secrets: "sendgrid:abc,ses:def"
`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.GetSecond("modules.notification.cache_ttl_seconds"))
	assert.Equal(t, 500*time.Millisecond, cfg.GetMillisecond("modules.notification.send_backoff_base_ms"))
	assert.Equal(t, []string{"a", "b", "c"}, cfg.GetArray("modules.notification.consumer_names"))
	assert.Equal(t, map[string]string{"sendgrid": "abc", "ses": "def"}, cfg.GetMap("modules.notification.webhook_secrets"))
	assert.Empty(t, cfg.GetArray("missing.key"))
}

func TestViper_EnvOverride(t *testing.T) {
	t.Setenv("COURIER_DATABASE_URL", "postgres://env")

	cfg, err := NewViperFromBytes("yaml", []byte("database:\n  url: postgres://file\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.GetString("database.url"))
}

func TestViper_EmptyType(t *testing.T) {
	_, err := NewViperFromBytes(" ", nil)
	assert.ErrorIs(t, err, ErrConfigTypeRequired)
}

func TestViper_File(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt:\n  ttl_minutes: 15\n"), 0o600))

	// Act
	cfg, err := NewViper(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.GetMinute("jwt.ttl_minutes"))
	assert.NoError(t, cfg.Close())
}

func TestViper_MissingFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
