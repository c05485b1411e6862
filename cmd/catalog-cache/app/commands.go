// Package app holds the cobra commands of the catalog-cache binary.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	internalapp "github.com/stacklok/catalog-cache/internal/app"
	"github.com/stacklok/catalog-cache/internal/config"
	"github.com/stacklok/catalog-cache/internal/versions"
)

var rootCmd = &cobra.Command{
	Use:               "catalog-cache",
	DisableAutoGenTag: true,
	Short:             "Local-first cache of streaming provider catalogs",
	Long: `catalog-cache keeps a local copy of the channel, movie and series catalogs
of one or more streaming providers, keeps it fresh in the background and
serves browsing and full-text search from the local copy.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(searchCmd)

	return rootCmd
}

// loadConfig loads the file named by --config.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Debug("Loaded configuration", "path", path, "profiles", len(cfg.Profiles))
	return cfg, nil
}

// openComponents builds the cache without the server for one-shot commands.
func openComponents(ctx context.Context) (*internalapp.AppComponents, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return internalapp.NewComponents(ctx, internalapp.WithConfig(cfg))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}

		if format == "json" {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info: %w", err)
			}
			cmd.Println(string(output))
			return nil
		}

		cmd.Printf("catalog-cache %s (commit %s, built %s, %s %s)\n",
			info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}
