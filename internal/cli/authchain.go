package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/roomstate/internal/resolve"
	"github.com/roach88/roomstate/internal/store"
)

// AuthChainOptions holds flags for the auth-chain command.
type AuthChainOptions struct {
	*RootOptions
	Database   string
	Difference bool
}

// AuthChainResult lists an auth chain, and optionally the auth difference
// between the chains of each input event.
type AuthChainResult struct {
	Events      []string             `json:"events"`
	Chain       []string             `json:"chain"`
	Difference  []string             `json:"difference,omitempty"`
	Diagnostics []resolve.Diagnostic `json:"diagnostics"`
}

// WriteText prints one event id per line.
func (r *AuthChainResult) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "auth chain of %d event(s): %d event(s)\n", len(r.Events), len(r.Chain))
	for _, id := range r.Chain {
		fmt.Fprintf(w, "  %s\n", id)
	}
	if r.Difference != nil {
		fmt.Fprintf(w, "auth difference: %d event(s)\n", len(r.Difference))
		for _, id := range r.Difference {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "warning: %s\n", d)
	}
}

// NewAuthChainCommand creates the auth-chain command.
func NewAuthChainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthChainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "auth-chain <event-id>...",
		Short: "Show the auth chain of stored events",
		Long: `Print every event reachable from the given events through auth_events,
including the events themselves.

Events missing from the store are reported as warnings and left out, as
the resolver does. With --difference the events that are not in the chain
of every input are listed as well.

Examples:
  roomstate auth-chain --db ./room.db '$IME:foo'
  roomstate auth-chain --db ./room.db --difference '$PA:foo' '$PB:foo'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthChain(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $ROOMSTATE_DB)")
	cmd.Flags().BoolVar(&opts.Difference, "difference", false, "also print the auth difference between the inputs")

	return cmd
}

func runAuthChain(ctx context.Context, opts *AuthChainOptions, ids []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.dbPath(opts.Database))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	chain, diags, err := resolve.AuthChain(ctx, st, ids)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to walk auth chain", err)
	}
	result := &AuthChainResult{
		Events:      ids,
		Chain:       chain.Sorted(),
		Diagnostics: nonNilDiagnostics(diags),
	}

	if opts.Difference {
		chains := make([]resolve.EventSet, len(ids))
		for i, id := range ids {
			c, _, err := resolve.AuthChain(ctx, st, []string{id})
			if err != nil {
				return fail(formatter, ExitCommandError, ErrCodeStore, "failed to walk auth chain", err)
			}
			chains[i] = c
		}
		result.Difference = resolve.AuthDifference(chains).Sorted()
	}

	formatter.VerboseLog("walked %d event(s), %d in chain", len(ids), len(result.Chain))
	return formatter.Success(result)
}
