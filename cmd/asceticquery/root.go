package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/config"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Catalog    string
	Backend    string
	Verbose    bool
}

// settings resolves the config file and environment, then applies the
// command line overrides.
func (o *RootOptions) settings() (config.Config, error) {
	cfg, err := config.Load(config.DefaultPrefix, o.ConfigFile)
	if err != nil {
		return cfg, err
	}
	if o.Catalog != "" {
		cfg.Catalog = o.Catalog
	}
	if o.Backend != "" {
		cfg.Backend = config.Backend(o.Backend)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (o *RootOptions) logger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "asceticquery",
		Short:         "Compile and run backend-neutral queries",
		Long:          "Compiles YAML query documents against an entity catalog into plans for memory, PostgreSQL, MongoDB or Elasticsearch, and runs them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", "", "entity catalog file")
	cmd.PersistentFlags().StringVarP(&opts.Backend, "backend", "b", "", "memory|postgres|mongo|elastic")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}
