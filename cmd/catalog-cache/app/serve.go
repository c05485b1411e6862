package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	internalapp "github.com/stacklok/catalog-cache/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog cache server",
	Long: `Start the HTTP API and the background scheduler.

The configuration file (--config) lists the provider profiles, the cache
database location and the sync and query tuning. Pending schema migrations
are applied on start.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := []internalapp.CatalogAppOptions{
		internalapp.WithConfig(cfg),
		internalapp.WithAddress(viper.GetString("address")),
	}

	catalogApp, err := internalapp.NewCatalogApp(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return fmt.Errorf("failed to build catalog cache: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- catalogApp.Start() }()

	select {
	case err := <-errCh:
		_ = catalogApp.Stop(defaultGracefulTimeout)
		return err
	case <-ctx.Done():
	}

	if err := catalogApp.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
