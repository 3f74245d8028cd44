package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/library-loans/internal/database"
)

var schemaPath string

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the schema (bundled per driver, or --schema FILE)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = rt.log.Sync() }()

		script, err := loadSchema(rt.cfg.DBDriver, schemaPath)
		if err != nil {
			return err
		}
		db, err := rt.openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.ApplySchema(cmd.Context(), db, script); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		rt.log.Info("schema applied", zap.String("driver", db.Driver), zap.String("source", schemaSource(schemaPath)))
		return nil
	},
}

func init() {
	initdbCmd.Flags().StringVar(&schemaPath, "schema", "", "SQL file to apply instead of the bundled schema")
}

func loadSchema(driver, path string) (string, error) {
	if path != "" {
		return database.LoadSchemaFile(path)
	}
	return database.DefaultSchema(driver)
}

func schemaSource(path string) string {
	if path == "" {
		return "bundled"
	}
	return path
}
