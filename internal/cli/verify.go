package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/custody/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
}

type verifyOutput struct {
	verify.EntryResult
}

func (o verifyOutput) WriteText(w io.Writer) {
	switch {
	case !o.Found():
		fmt.Fprintf(w, "NOT FOUND %s\n", o.Hash)
	case o.Valid:
		fmt.Fprintf(w, "INTACT entry %d (%s)\n", *o.Index, o.Timestamp)
	default:
		fmt.Fprintf(w, "CORRUPTED entry %d: stored fields do not hash to %s\n", *o.Index, o.Hash)
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <hash>",
		Short: "Verify a single entry by hash",
		Long: `Look up an entry by hash and recompute its hash from the stored fields.

Exit codes:
  0 - Entry is intact
  1 - Entry is corrupted or no entry has this hash
  2 - Command error

Example:
  custody verify dd11a0e6e360d45ae372deab67ff9344106a18138f06fd58a0620592a62c81d7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	return cmd
}

func runVerify(opts *VerifyOptions, hash string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	s, err := opts.openSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.verifier.VerifyEntry(cmd.Context(), hash)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "verify failed", err)
	}

	if res.Valid {
		return out.Success(verifyOutput{res})
	}

	if err := out.Failure(string(res.Reason), "entry did not verify", verifyOutput{res}); err != nil {
		return err
	}
	if !res.Found() {
		return NewExitError(ExitFailure, fmt.Sprintf("no entry with hash %s", hash))
	}
	return NewExitError(ExitFailure, fmt.Sprintf("entry %d is corrupted", *res.Index))
}
