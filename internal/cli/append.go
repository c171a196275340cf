package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/ledger"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	EventType string
	Actor     string
	TenantID  string
	Payload   string
}

// appendOutput is the append command's result.
type appendOutput struct {
	ledger.AppendResult
}

func (o appendOutput) WriteText(w io.Writer) {
	fmt.Fprintf(w, "appended entry %d\nhash %s\n", o.Index, o.Hash)
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append an audit event",
		Long: `Append one audit event to the ledger and print its index and hash.

The timestamp, index and predecessor hash are assigned by the ledger.

Exit codes:
  0 - Entry appended
  2 - Rejected (invalid input, contention, storage failure)

Example:
  custody append --event-type DOC_SERVED --actor u1 --tenant t1 --payload '{"doc":"A"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EventType, "event-type", "", "event type, e.g. DOC_SERVED (required)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "acting principal (required)")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "payload as a JSON object")
	_ = cmd.MarkFlagRequired("event-type")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runAppend(opts *AppendOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	payload, err := ledger.ParseObject([]byte(opts.Payload))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --payload", err)
	}

	s, err := opts.openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.coord.Append(cmd.Context(), ledger.AppendRequest{
		EventType: opts.EventType,
		Actor:     opts.Actor,
		TenantID:  opts.TenantID,
		Payload:   payload,
	})
	if err != nil {
		_ = out.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "append failed", err)
	}

	out.VerboseLog("appended index=%d hash=%s", res.Index, res.Hash)
	return out.Success(appendOutput{res})
}

// errorCode returns the ledger code of err, or a generic CLI code.
func errorCode(err error) string {
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	return "E_COMMAND"
}
