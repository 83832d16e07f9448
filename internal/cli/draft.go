package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtran/mailflow/internal/api"
	"github.com/dtran/mailflow/internal/contacts"
	"github.com/dtran/mailflow/internal/credential"
	"github.com/dtran/mailflow/internal/model"
)

// newDraftCmd saves a draft without opening the TUI, for scripting.
func newDraftCmd() *cobra.Command {
	var (
		to      string
		subject string
	)
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Save a draft from the command line",
		Long:  "Saves a draft on the server. The body is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := credential.Get(credential.TokenKey)
			if err != nil || token == "" {
				return fmt.Errorf("not logged in; run 'mailflow login' first")
			}

			body, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}

			client := api.New(cfg.Server.BaseURL, token, newLogger())
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			if !strings.Contains(to, "@") && cfg.ContactsDB != "" {
				db, dbErr := contacts.NewStore(cfg.ContactsDB)
				if dbErr == nil {
					defer db.Close()
					to, err = resolveRecipient(ctx, db, to)
					if err != nil {
						return err
					}
				}
			}

			if err := client.SaveDraft(ctx, model.Draft{
				To:      to,
				Subject: subject,
				Body:    string(body),
			}); err != nil {
				return fmt.Errorf("saving draft: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Draft saved.")
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient address or contact prefix")
	cmd.Flags().StringVar(&subject, "subject", "", "draft subject")
	return cmd
}

// resolveRecipient expands a bare name or email prefix into the most used
// matching contact's address. Full addresses pass through untouched.
func resolveRecipient(ctx context.Context, db *contacts.Store, to string) (string, error) {
	if strings.Contains(to, "@") {
		return to, nil
	}
	matches, err := db.Search(ctx, to)
	if err != nil {
		return "", fmt.Errorf("looking up recipient %q: %w", to, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no contact matches %q; use a full address", to)
	}
	return matches[0].Email, nil
}
