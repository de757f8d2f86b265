package main

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/finder"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/infrastructure/instrumented"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
)

type runOptions struct {
	count    bool
	paged    bool
	pageSize int
	data     string
}

// NewRunCommand executes a query against the configured store and prints
// one JSON object per row.
func NewRunCommand(root *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <query.yaml|->",
		Short: "Run a query and print its rows as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.settings()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if opts.pageSize > 0 {
				cfg.Paging.DefaultPageSize = opts.pageSize
			}
			logger, err := root.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			catalog, err := loadCatalog(cfg.Catalog)
			if err != nil {
				return err
			}
			rootName, spec, err := readSpec(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			executor, release, err := openExecutor(ctx, cfg, opts.data)
			if err != nil {
				return err
			}
			defer release()

			metrics := instrumented.NewMetrics(prometheus.NewRegistry())
			f := finder.NewFinder(
				catalog,
				instrumented.NewExecutor(executor, metrics, logger.Named("executor")),
				finder.WithLogger(logger.Named("finder")),
				finder.WithDefaultPageSize(cfg.Paging.DefaultPageSize),
			)

			out := cmd.OutOrStdout()
			if opts.count {
				n, err := f.Count(ctx, rootName, spec)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, n)
				return err
			}

			enc := json.NewEncoder(out)
			emit := func(rows []plan.Row) error {
				for _, row := range rows {
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return nil
			}
			if opts.paged {
				return f.ConsumeInPages(ctx, rootName, spec, func(page query.Page[plan.Row]) error {
					logger.Debug("page",
						zap.Int("index", page.PageIndex),
						zap.Int("of", page.TotalPages()),
						zap.Int("rows", len(page.Content)),
					)
					return emit(page.Content)
				})
			}
			rows, err := f.FindAll(ctx, rootName, spec)
			if err != nil {
				return err
			}
			return emit(rows)
		},
	}

	cmd.Flags().BoolVar(&opts.count, "count", false, "print the number of matching rows only")
	cmd.Flags().BoolVar(&opts.paged, "paged", false, "fetch the result page by page")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "page size for --paged when the query has none")
	cmd.Flags().StringVar(&opts.data, "data", "", "YAML file of collections to load into the memory backend")

	return cmd
}
