package cli

import (
	"github.com/spf13/cobra"

	"tutorgate/internal/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE:  runMigrate,
	}

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	driver := getDBType()
	db, err := storage.Open(driver, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(db, driver); err != nil {
		return err
	}
	log.WithField("db", driver).Info("migrate_done")
	return nil
}
