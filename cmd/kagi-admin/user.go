package main

import (
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/kiranshivaraju/kagi/pkg/models"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage vault owners",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

type userCreateOptions struct {
	id    string
	name  string
	email string
}

func (o userCreateOptions) validate() error {
	if o.id == "" {
		return errors.New("--id must not be empty")
	}
	if o.name == "" {
		return errors.New("--name must not be empty")
	}
	if _, err := mail.ParseAddress(o.email); err != nil {
		return fmt.Errorf("--email %q is not a valid address", o.email)
	}
	return nil
}

func newUserCreateCmd() *cobra.Command {
	var opts userCreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a vault owner",
		Long: `Creates a user record. The id is the identifier issued by your identity
provider and becomes the owner of every record the user creates.

Example:
  kagi-admin user create --id u_123 --name "Ada Lovelace" --email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			now := time.Now().UTC()
			err = st.CreateUser(ctx, &models.User{
				ID:        opts.id,
				Name:      opts.name,
				Email:     opts.email,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if errors.Is(err, store.ErrDuplicateKey) {
				return fmt.Errorf("user %s or email %s already exists", opts.id, opts.email)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), success.Sprint("✓"), "created user", highlight.Sprint(opts.id))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "user id issued by the identity provider")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.email, "email", "", "email address")
	for _, f := range []string{"id", "name", "email"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}
