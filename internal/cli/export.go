package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/ledger"
)

// exportPageSize is the number of entries read per store query.
const exportPageSize = 1000

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	From   int64
	To     int64
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a range of entries as JSON lines",
		Long: `Write entries in index order, one JSON object per line, including
their stored hashes. The archive can be checked later with
verify-chain --file. Nothing is removed from the ledger.

Examples:
  custody export > archive.jsonl
  custody export --from 1000 --to 1999 -o 2026-q1.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 0, "first index to export")
	cmd.Flags().Int64Var(&opts.To, "to", -1, "last index to export (-1 for the tip)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	if opts.From < 0 || (opts.To >= 0 && opts.To < opts.From) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid range: --from %d --to %d", opts.From, opts.To))
	}

	s, err := opts.openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	n, err := exportRange(cmd.Context(), s.store, opts.From, opts.To, w)
	if err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}
	opts.formatter(cmd).VerboseLog("exported %d entries", n)
	return nil
}

// exportRange streams [from, to] to w. A negative to means the tip as of
// the first read.
func exportRange(ctx context.Context, st ledger.ChainStore, from, to int64, w io.Writer) (int64, error) {
	if to < 0 {
		tip, ok, err := st.Last(ctx)
		if err != nil {
			return 0, fmt.Errorf("read tip: %w", err)
		}
		if !ok {
			return 0, nil
		}
		to = tip.Index
	}

	enc := json.NewEncoder(w)
	var n int64
	for next := from; next <= to; {
		page, err := st.ListRange(ctx, next, to, exportPageSize)
		if err != nil {
			return n, fmt.Errorf("read entries from %d: %w", next, err)
		}
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			if err := enc.Encode(e); err != nil {
				return n, fmt.Errorf("write entry %d: %w", e.Index, err)
			}
			n++
		}
		next = page[len(page)-1].Index + 1
	}
	return n, nil
}
