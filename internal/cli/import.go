package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/roomstate/internal/auth"
	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/harness"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/store"
	"github.com/roach88/roomstate/internal/testutil"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database    string
	RoomVersion string
}

// ImportResult summarizes what an import wrote.
type ImportResult struct {
	Scenario    string   `json:"scenario"`
	RoomID      string   `json:"room_id"`
	RoomVersion string   `json:"room_version"`
	Events      int      `json:"events"`
	Snapshots   []string `json:"snapshots"`
	Forks       []string `json:"forks"`
	Rejected    []string `json:"rejected"`
}

// WriteText prints the import summary.
func (r *ImportResult) WriteText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Imported %s into %s (version %s)\n", r.Scenario, r.RoomID, r.RoomVersion)
	fmt.Fprintf(w, "  events:    %d\n", r.Events)
	fmt.Fprintf(w, "  snapshots: %d\n", len(r.Snapshots))
	if len(r.Forks) > 0 {
		fmt.Fprintf(w, "  forks:     %v\n", r.Forks)
	}
	if len(r.Rejected) > 0 {
		fmt.Fprintf(w, "  rejected:  %v\n", r.Rejected)
	}
	if verbose {
		for _, name := range r.Snapshots {
			fmt.Fprintf(w, "    %s\n", name)
		}
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <scenario.yaml>",
		Short: "Load a scenario DAG into the store",
		Long: `Replay a scenario and persist it.

Every event is written with the auth and prev events derived during the
replay. An event whose auth events fail the state-independent checks is
stored as rejected. The state after each event is stored as a snapshot named after the
event, so any pair of branches can be resolved later with
'roomstate resolve --snapshot'.

Importing the same scenario twice is a no-op for events; snapshots are
rewritten.

Examples:
  roomstate import ./scenarios/topic_reset.yaml --db ./room.db
  roomstate resolve --db ./room.db --room '!test:foo' --snapshot T1 --snapshot MB`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $ROOMSTATE_DB)")
	cmd.Flags().StringVar(&opts.RoomVersion, "room-version", "", "room version (default $ROOMSTATE_ROOM_VERSION)")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	scenario, err := harness.LoadScenarioWithVersion(path, opts.roomVersion(""))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalid, "failed to load scenario", err)
	}
	if opts.RoomVersion != "" {
		scenario.RoomVersion = opts.RoomVersion
	}
	rules, err := lookupRules(opts.registry(), scenario.RoomVersion)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeVersion, "unusable room version", err)
	}

	replay, err := harness.Grow(ctx, scenario, rules, opts.logger())
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInvalid, "failed to replay scenario", err)
	}

	st, err := store.Open(opts.dbPath(opts.Database))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	result := &ImportResult{
		Scenario:    scenario.Name,
		RoomID:      testutil.RoomID,
		RoomVersion: rules.ID,
		Snapshots:   []string{},
		Forks:       []string{},
		Rejected:    []string{},
	}
	for _, step := range replay.Trace {
		ev, err := replay.Store.Event(ctx, step.Event)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeGeneric, "replayed event missing", err)
		}
		rejected, err := rejectBadAuthEvents(ctx, rules.Auth, ev, st.Event)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeStore, "failed to check auth events", err)
		}
		if rejected != nil {
			opts.logger().Warn("rejected imported event", "event_id", ev.ID, "reason", rejected.Reason)
			result.Rejected = append(result.Rejected, harness.ShortName(ev.ID))
		}
		if err := st.WriteEvent(ctx, ev); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, "failed to write event", err)
		}
		result.Events++

		name := harness.ShortName(step.Event)
		if err := st.WriteSnapshot(ctx, ev.RoomID, name, replay.StateAt[step.Event]); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, "failed to write snapshot", err)
		}
		result.Snapshots = append(result.Snapshots, name)
		if step.Resolved {
			result.Forks = append(result.Forks, name)
		}
	}
	sort.Strings(result.Snapshots)

	opts.logger().Info("imported scenario",
		"scenario", scenario.Name,
		"events", result.Events,
		"snapshots", len(result.Snapshots),
	)
	return formatter.Success(result)
}

// rejectBadAuthEvents marks ev rejected when its auth_events fail
// auth.CheckAuthEventsSelection against the events already stored. Only
// fetch failures are returned as errors.
func rejectBadAuthEvents(ctx context.Context, rules roomversion.AuthRules, ev *event.Event, fetch auth.FetchFunc) (*auth.DeniedError, error) {
	err := auth.CheckAuthEventsSelection(ctx, rules, ev, fetch)
	if err == nil {
		return nil, nil
	}
	var denied *auth.DeniedError
	if !errors.As(err, &denied) {
		return nil, err
	}
	ev.Rejected = true
	return denied, nil
}
