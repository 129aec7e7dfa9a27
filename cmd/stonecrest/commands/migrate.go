package commands

import (
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the ledger schema",
	Long: `Apply the embedded ledger schema to the database in STONECREST_DATA_DIR.
The schema is idempotent; running it twice is safe.

Example:
  stonecrest migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	log.Info().Str("path", db.Path()).Msg("Ledger schema applied")
	return nil
}
