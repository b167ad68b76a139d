package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/kagi/internal/config"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "kagi-admin",
		Short: "Operator tools for the Kagi vault",
		Long: `kagi-admin manages a Kagi deployment from the command line.

Database commands read DATABASE_URL; session commands also read
KAGI_SESSION_SECRET, KAGI_SESSION_COOKIE and KAGI_SESSION_TTL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newKeygenCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newSessionCmd())
	return root
}

// openStore connects to the database named by the environment. The returned
// func closes the pool.
func openStore(ctx context.Context) (*store.PostgresStore, func(), error) {
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("connecting to database", "max_conns", dbCfg.MaxOpenConns)
	pool, err := store.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}
