package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Poll.MailboxSec)
	assert.Equal(t, 1000, cfg.Poll.ChatListMS)
	assert.Equal(t, 800, cfg.Poll.HistoryMS)
	assert.Equal(t, 300, cfg.Recording.MaxSeconds)
	assert.Equal(t, 1000, cfg.Recording.MinBytes)
	assert.Equal(t, "audio/ogg;codecs=opus", cfg.Recording.Formats[0])
	assert.True(t, cfg.Display.SoundEnabled)
}

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  base_url: https://mail.example.com
poll:
  mailbox_sec: 10
display:
  sound_enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://mail.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 10, cfg.Poll.MailboxSec)
	assert.Equal(t, 1000, cfg.Poll.ChatListMS, "unset keys keep defaults")
	assert.False(t, cfg.Display.SoundEnabled)
	assert.NotEmpty(t, cfg.Recording.Formats, "format list falls back to defaults")
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg.Server.BaseURL = "https://mail.example.com"
	cfg.Poll.MailboxSec = 7

	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://mail.example.com", got.Server.BaseURL)
	assert.Equal(t, 7, got.Poll.MailboxSec)
}
