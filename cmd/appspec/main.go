package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags override the loaded configuration for any command.
type globalFlags struct {
	manifest   string
	metaSchema string
	dbPath     string
	logLevel   string
}

func (f globalFlags) apply(cfg *Config) {
	if f.manifest != "" {
		cfg.Manifest = f.manifest
	}
	if f.metaSchema != "" {
		cfg.MetaSchema = f.metaSchema
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "appspec",
		Short:         "Validate app API specs and the values passed to them",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.manifest, "manifest", "m", "", "callables manifest (env APPSPEC_MANIFEST)")
	pf.StringVar(&flags.metaSchema, "meta-schema", "", "meta-schema file (default: embedded)")
	pf.StringVar(&flags.dbPath, "db-path", "", "report database path (default: ~/.appspec/appspec.db)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	config := func() (Config, error) {
		cfg, err := loadConfig()
		if err != nil {
			return cfg, err
		}
		flags.apply(&cfg)
		return cfg, nil
	}

	root.AddCommand(newValidateCmd(config), newServeCmd(config), newVersionCmd())
	return root
}
