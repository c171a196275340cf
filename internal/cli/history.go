package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/history"
	"github.com/roach88/custody/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Before int64
}

type historyOutput struct {
	history.Page
}

func (o historyOutput) WriteText(w io.Writer) {
	if len(o.Entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTIMESTAMP\tEVENT\tACTOR\tPAYLOAD\tHASH")
	for _, e := range o.Entries {
		payload, err := ledger.MarshalCanonical(e.Payload)
		if err != nil {
			payload = []byte("?")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Index, ledger.FormatTimestamp(e.Timestamp), e.EventType, e.Actor, payload, shortHash(e.Hash))
	}
	tw.Flush()
	if o.NextBefore != nil {
		fmt.Fprintf(w, "more: --before %d\n", *o.NextBefore)
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <tenant-id>",
		Short: "List a tenant's entries, newest first",
		Long: `List the entries tagged with a tenant in descending index order.

Pages hold at most --limit entries; pass the printed --before value to
read the next page.

Examples:
  custody history t1
  custody history t1 --limit 20 --before 340 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", history.DefaultLimit, fmt.Sprintf("page size (max %d)", history.MaxLimit))
	cmd.Flags().Int64Var(&opts.Before, "before", -1, "only entries with a smaller index (-1 for none)")

	return cmd
}

func runHistory(opts *HistoryOptions, tenantID string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	s, err := opts.openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	q := history.Query{TenantID: tenantID, Limit: opts.Limit}
	if opts.Before >= 0 {
		q.Before = &opts.Before
	}

	page, err := s.history.ListByTenant(cmd.Context(), q)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "history failed", err)
	}
	return out.Success(historyOutput{page})
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
