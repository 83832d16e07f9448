package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds connection settings for the mail/chat API.
type ServerConfig struct {
	// BaseURL is the root URL of the server (e.g. https://mail.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// PollConfig holds the fixed poll intervals per target. The mailbox interval
// is coarse; the chat intervals are shorter for responsiveness.
type PollConfig struct {
	MailboxSec int `mapstructure:"mailbox_sec" yaml:"mailbox_sec"`
	ChatListMS int `mapstructure:"chat_list_ms" yaml:"chat_list_ms"`
	HistoryMS  int `mapstructure:"history_ms" yaml:"history_ms"`
}

// RecordingConfig holds voice capture settings.
type RecordingConfig struct {
	// MaxSeconds caps a recording; reaching it stops the session the same
	// way an explicit done does.
	MaxSeconds int `mapstructure:"max_seconds" yaml:"max_seconds"`

	// MinBytes is the smallest assembled clip accepted for upload.
	MinBytes int `mapstructure:"min_bytes" yaml:"min_bytes"`

	// Formats is the ordered encoding fallback list tried at session
	// creation; the first one the capture device supports wins.
	Formats []string `mapstructure:"formats" yaml:"formats"`
}

// DisplayConfig holds UI preferences.
type DisplayConfig struct {
	SoundEnabled bool `mapstructure:"sound_enabled" yaml:"sound_enabled"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Poll      PollConfig      `mapstructure:"poll" yaml:"poll"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`

	// ContactsDB is the path of the local contacts cache database.
	ContactsDB string `mapstructure:"contacts_db" yaml:"contacts_db"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/mailflow/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailflow", "config.yaml")
}

func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	return &AppConfig{
		Poll: PollConfig{
			MailboxSec: 3,
			ChatListMS: 1000,
			HistoryMS:  800,
		},
		Recording: RecordingConfig{
			MaxSeconds: 300,
			MinBytes:   1000,
			Formats: []string{
				"audio/ogg;codecs=opus",
				"audio/webm",
				"audio/wav",
			},
		},
		Display: DisplayConfig{
			SoundEnabled: true,
		},
		ContactsDB: filepath.Join(home, ".config", "mailflow", "contacts.db"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("poll.mailbox_sec", 3)
	v.SetDefault("poll.chat_list_ms", 1000)
	v.SetDefault("poll.history_ms", 800)
	v.SetDefault("recording.max_seconds", 300)
	v.SetDefault("recording.min_bytes", 1000)
	v.SetDefault("display.sound_enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Recording.Formats) == 0 {
		cfg.Recording.Formats = defaultAppConfig().Recording.Formats
	}

	return cfg, nil
}

// SaveConfig writes the configuration as YAML at path, creating parent
// directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("poll", cfg.Poll)
	v.Set("recording", cfg.Recording)
	v.Set("display", cfg.Display)
	v.Set("contacts_db", cfg.ContactsDB)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
