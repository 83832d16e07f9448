package cli

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dtran/mailflow/internal/credential"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store a session token in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), "Session token: ")
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}
			token := string(raw)
			if token == "" {
				return fmt.Errorf("empty token")
			}
			if err := credential.Set(credential.TokenKey, token); err != nil {
				return fmt.Errorf("storing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token stored.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credential.Delete(credential.TokenKey); err != nil {
				return fmt.Errorf("removing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token removed.")
			return nil
		},
	}
}
