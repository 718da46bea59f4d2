package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	"github.com/tendant/simple-cms/pkg/simplecms/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the cmsctl command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cmsctl",
		Short: "Manage pages, contents and placements",
		Long: `cmsctl operates the simple-cms service directly against a database.

The backend is read from DATABASE_URL (or --database-url). The default
in-memory backend does not persist between invocations; use sqlite:// or
postgres:// to keep state.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("database-url", "", "database URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewPageCommand())
	rootCmd.AddCommand(NewRegionCommand())
	rootCmd.AddCommand(NewContentCommand())
	rootCmd.AddCommand(NewInsertCommand())
	rootCmd.AddCommand(NewPlacementsCommand())
	rootCmd.AddCommand(NewNextOrderCommand())

	return rootCmd
}

// withService builds a service from the environment and command flags and
// passes it to fn. Resources are released when fn returns.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc simplecms.Service) error) error {
	opts := []config.Option{config.WithEnv(), config.WithEventSink(config.EventSinkNoop)}
	if dbURL, _ := cmd.Flags().GetString("database-url"); dbURL != "" {
		opts = append(opts, config.WithDatabaseURL(dbURL))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	zlog, err := logger.New(level, "console", "cmsctl")
	if err != nil {
		return err
	}
	defer zlog.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := cfg.BuildService(ctx, zlog)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			zlog.Warn("closing resources failed", zap.Error(err))
		}
	}()

	return fn(ctx, rt.Service)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
