// Package cli wires the cobra command tree: the root command launches the
// TUI, subcommands cover login and scripted draft saving.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/dtran/mailflow/internal/api"
	"github.com/dtran/mailflow/internal/app"
	"github.com/dtran/mailflow/internal/contacts"
	"github.com/dtran/mailflow/internal/credential"
	"github.com/dtran/mailflow/internal/media/mic"
	"github.com/dtran/mailflow/internal/media/speaker"
	"github.com/dtran/mailflow/internal/model"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "mailflow",
		Short:   "Terminal mail and chat client",
		Long:    "A terminal client that keeps a webmail and chat account in sync by polling.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.BaseURL == "" {
				return fmt.Errorf("no server configured; set server.base_url in %s", configPath())
			}

			token, err := credential.Get(credential.TokenKey)
			if err != nil || token == "" {
				return fmt.Errorf("not logged in; run 'mailflow login' first")
			}

			log := newLogger()

			var contactsDB *contacts.Store
			if cfg.ContactsDB != "" {
				contactsDB, err = contacts.NewStore(cfg.ContactsDB)
				if err != nil {
					// The cache is a convenience; run without it.
					log.Warn("contact cache unavailable", "err", err)
					contactsDB = nil
				}
			}

			player := speaker.NewPlayer(log)
			m := app.New(app.Deps{
				Config:     cfg,
				ConfigPath: configPath(),
				API:        api.New(cfg.Server.BaseURL, token, log),
				Device:     mic.NewDevice(log),
				Player:     player,
				Notifier:   player,
				ContactsDB: contactsDB,
				Log:        log,
			})

			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("mailflow %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.AddCommand(newLoginCmd())
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newDraftCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return model.DefaultConfigPath()
}

func loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(configPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger writes structured logs to a file so they do not corrupt the TUI.
func newLogger() *slog.Logger {
	path := os.Getenv("MAILFLOW_LOG")
	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
