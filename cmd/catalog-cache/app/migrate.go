package app

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/stacklok/catalog-cache/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Migrate the database down",
	Long: `Migrate the database schema down by reverting migrations.
WARNING: reverting the first migration deletes the whole cache.

Examples:
  # Migrate down by 1 step
  catalog-cache migrate down --config config.yaml --num-steps 1 --yes`,
	RunE: runMigrateDown,
}

func init() {
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func openMigrator() (database.Migrator, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	path := cfg.Database.GetPath()
	m, err := database.NewFromConnectionString(database.URLForPath(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, path, nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, path, err := openMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	numSteps, err := numStepsFlag(cmd)
	if err != nil {
		return err
	}

	slog.Info("Applying database migrations", "path", path)
	if numSteps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(numSteps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	displayMigrationVersion(m)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	numSteps, err := numStepsFlag(cmd)
	if err != nil {
		return err
	}
	if err := confirmMigrateDown(cmd, numSteps); err != nil {
		return err
	}

	m, _, err := openMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if numSteps == 0 {
		slog.Warn("Migrating down all steps; the cache will be emptied")
		err = m.Down()
	} else {
		slog.Info("Migrating down", "steps", numSteps)
		err = m.Steps(-numSteps)
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No migrations to revert")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	displayMigrationVersion(m)
	return nil
}

func numStepsFlag(cmd *cobra.Command) (int, error) {
	n, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return 0, fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("number of steps exceeds maximum allowed value")
	}
	return int(n), nil // #nosec G115 -- bounded above
}

func confirmMigrateDown(cmd *cobra.Command, numSteps int) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return nil
	}

	prompt := fmt.Sprintf("This will revert %d migration(s) and may delete cached data. Continue?", numSteps)
	if numSteps == 0 {
		prompt = "This will revert ALL migrations and delete the cache. Continue?"
	}
	if !confirm(cmd, prompt) {
		return fmt.Errorf("migration cancelled by user")
	}
	return nil
}

func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Printf("%s (yes/no): ", prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func closeMigrator(m database.Migrator) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		slog.Warn("Failed to close migrator", "error", err)
	}
}

func displayMigrationVersion(m database.Migrator) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("Database schema is empty")
	case err != nil:
		slog.Warn("Failed to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state; manual intervention may be required", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}
