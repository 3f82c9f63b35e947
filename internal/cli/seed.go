package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tutorgate/internal/catalog"
	"tutorgate/internal/redis"
	"tutorgate/internal/service/store"
	"tutorgate/internal/storage"
)

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the default characters and scenarios",
		RunE:  runSeed,
	}

	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
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
	st := store.NewService(db)

	// with redis on, running gateways must see the new rows
	var target store.CatalogWriter = st
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
		cache, err := catalog.New(st, rdb, log)
		if err != nil {
			return err
		}
		defer cache.Close()
		target = cache
	}

	if err := store.SeedCatalog(cmd.Context(), target); err != nil {
		return err
	}
	log.Info("seed_done")
	return nil
}
