package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/kagi/internal/config"
	"github.com/kiranshivaraju/kagi/internal/session"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Issue and revoke browser sessions",
	}
	cmd.AddCommand(newSessionIssueCmd())
	cmd.AddCommand(newSessionRevokeCmd())
	return cmd
}

func newSessionIssueCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session cookie for a user",
		Long: `Creates a session for an existing user and prints the cookie that carries
it. Useful for scripting against the API before a login flow exists.

Example:
  kagi-admin session issue --user u_123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessCfg, err := config.LoadSession()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if _, err := st.GetUser(ctx, userID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %s not found", userID)
				}
				return err
			}

			mgr, err := session.NewManager(st, sessCfg)
			if err != nil {
				return err
			}
			issued, err := mgr.Issue(ctx, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s issued session for %s %s\n",
				success.Sprint("✓"), highlight.Sprint(userID),
				muted.Sprintf("(expires %s)", issued.Session.ExpiresAt.Format(time.RFC3339)))
			fmt.Fprintf(out, "token:  %s\n", issued.Session.Token)
			fmt.Fprintf(out, "cookie: %s=%s\n", mgr.CookieName(), issued.Cookie)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "id of the user to sign in")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newSessionRevokeCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a session by its token",
		Long: `Deletes the session row so its cookie stops working immediately. Without
--token the token is read from the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				var err error
				if token, err = promptSecret(cmd, "Session token"); err != nil {
					return err
				}
			}
			if token == "" {
				return errors.New("--token must not be empty")
			}
			slog.Debug("revoking session", "token_len", len(token))
			sessCfg, err := config.LoadSession()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			mgr, err := session.NewManager(st, sessCfg)
			if err != nil {
				return err
			}
			if err := mgr.Revoke(ctx, token); err != nil {
				if errors.Is(err, session.ErrNoSession) {
					return errors.New("no session with that token")
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), success.Sprint("✓"), "session revoked")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "session token printed by 'session issue'")
	return cmd
}
