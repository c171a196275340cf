package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/catalog"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
}

// CatalogResult lists the event types a catalog defines.
type CatalogResult struct {
	Path   string   `json:"path"`
	Events []string `json:"events"`
}

func (r CatalogResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "✓ %s: %d event types\n", r.Path, len(r.Events))
	for _, e := range r.Events {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog <path>",
		Short: "Validate a CUE event catalog",
		Long: `Compile a CUE event catalog and list the event types it defines.

When a catalog is configured (--catalog or CUSTODY_CATALOG), appends with
an unknown event type, or a payload that does not satisfy the event's
schema, are rejected.

Exit codes:
  0 - Catalog is valid
  2 - Catalog failed to load

Example:
  custody catalog ./events.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, args[0], cmd)
		},
	}

	return cmd
}

func runCatalog(opts *CatalogOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cat, err := catalog.Load(path)
	if err != nil {
		_ = out.Error("E_CATALOG", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid catalog", err)
	}

	return out.Success(CatalogResult{Path: path, Events: cat.Events()})
}
