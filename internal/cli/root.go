// Package cli implements the tutorgate commands.
package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tutorgate/internal/config"
)

var (
	configPath string
	dbType     string
	debugFlag  bool
)

// RootCmd is the top-level command. Without a subcommand it serves.
var RootCmd = &cobra.Command{
	Use:           "tutorgate",
	Short:         "Persona and scenario driven chat gateway with long-term memory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	},
	RunE: runServe,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $TUTORGATE_CONFIG or config.json)")
	RootCmd.PersistentFlags().StringVar(&dbType, "db", "", "Database driver: sqlite3 or mysql (default: $TUTORGATE_DB or sqlite3)")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Verbose logging")
}

// Execute runs the root command and reports failures through logrus.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("tutorgate failed")
		os.Exit(1)
	}
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("TUTORGATE_CONFIG"); env != "" {
		return env
	}
	return "config.json"
}

func getDBType() string {
	if dbType != "" {
		return dbType
	}
	if env := os.Getenv("TUTORGATE_DB"); env != "" {
		return env
	}
	return "sqlite3"
}

func loadConfig() (*config.Config, logrus.FieldLogger, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg), nil
}

// newLogger uses text output outside prod and JSON in prod.
func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.BasicConfig.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	log.SetLevel(logrus.InfoLevel)
	if debugFlag || cfg.Memory.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
