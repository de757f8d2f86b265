package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
)

type compileOptions struct {
	count bool
}

// NewCompileCommand prints what a query becomes on the selected backend
// without touching any store.
func NewCompileCommand(root *RootOptions) *cobra.Command {
	opts := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile <query.yaml|->",
		Short: "Print the backend rendering of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.settings()
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg.Catalog)
			if err != nil {
				return err
			}
			caps, err := capabilities(cfg.Backend)
			if err != nil {
				return err
			}
			rootName, spec, err := readSpec(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			compiler := plan.NewCompiler(catalog, plan.WithCapabilities(caps))
			var p *plan.Plan
			if opts.count {
				p, err = compiler.CompileCount(rootName, spec)
			} else {
				p, err = compiler.Compile(rootName, spec)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Backend, p)
		},
	}

	cmd.Flags().BoolVar(&opts.count, "count", false, "compile the count of the query instead")

	return cmd
}

// readSpec decodes the query from a file, or from stdin for "-".
func readSpec(stdin io.Reader, name string) (string, query.QuerySpec, error) {
	if name == "-" {
		return loadSpec(stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return "", query.QuerySpec{}, errors.Wrap(err, "open query")
	}
	defer f.Close()
	return loadSpec(f)
}
