package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/harness"
	"github.com/roach88/roomstate/internal/resolve"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/store"
	"github.com/roach88/roomstate/internal/testutil"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Database    string
	RoomID      string
	Snapshots   []string
	RoomVersion string
	Record      bool
}

// ResolveOutput is the result of one resolution.
type ResolveOutput struct {
	Scenario          string               `json:"scenario,omitempty"`
	RoomID            string               `json:"room_id"`
	RoomVersion       string               `json:"room_version"`
	Inputs            []string             `json:"inputs"`
	State             StateView            `json:"state"`
	StateHash         string               `json:"state_hash"`
	ConflictedSlots   int                  `json:"conflicted_slots"`
	FullConflictedSet []string             `json:"full_conflicted_set"`
	PowerOrder        []string             `json:"power_order"`
	Mainline          []string             `json:"mainline"`
	MainlineOrder     []string             `json:"mainline_order"`
	Diagnostics       []resolve.Diagnostic `json:"diagnostics"`
	ResolutionID      string               `json:"resolution_id,omitempty"`
	Seq               int64                `json:"seq,omitempty"`

	state event.StateMap
}

// WriteText renders the resolved state one slot per line.
func (o *ResolveOutput) WriteText(w io.Writer, verbose bool) {
	if o.Scenario != "" {
		fmt.Fprintf(w, "scenario: %s\n", o.Scenario)
	}
	fmt.Fprintf(w, "room: %s (version %s)\n", o.RoomID, o.RoomVersion)
	fmt.Fprintf(w, "inputs: %s\n", strings.Join(o.Inputs, " "))
	fmt.Fprintf(w, "conflicted slots: %d\n", o.ConflictedSlots)
	if verbose {
		fmt.Fprintf(w, "full conflicted set: %s\n", strings.Join(o.FullConflictedSet, " "))
		fmt.Fprintf(w, "power order: %s\n", strings.Join(o.PowerOrder, " "))
		fmt.Fprintf(w, "mainline: %s\n", strings.Join(o.Mainline, " "))
		fmt.Fprintf(w, "mainline order: %s\n", strings.Join(o.MainlineOrder, " "))
	}
	fmt.Fprintln(w, "state:")
	io.WriteString(w, harness.FormatState(o.state))
	fmt.Fprintf(w, "hash: %s\n", o.StateHash)
	for _, d := range o.Diagnostics {
		fmt.Fprintf(w, "warning: %s\n", d)
	}
	if o.ResolutionID != "" {
		fmt.Fprintf(w, "recorded: %s (seq %d)\n", o.ResolutionID, o.Seq)
	}
}

func newResolveOutput(roomID, version string, inputs []string, res *resolve.Result) (*ResolveOutput, error) {
	hash, err := event.StateHash(res.State)
	if err != nil {
		return nil, err
	}
	return &ResolveOutput{
		RoomID:            roomID,
		RoomVersion:       version,
		Inputs:            inputs,
		State:             NewStateView(res.State),
		StateHash:         hash,
		ConflictedSlots:   res.ConflictedSlots,
		FullConflictedSet: nonNil(res.FullConflictedSet),
		PowerOrder:        nonNil(res.PowerOrder),
		Mainline:          nonNil(res.Mainline),
		MainlineOrder:     nonNil(res.MainlineOrder),
		Diagnostics:       nonNilDiagnostics(res.Diagnostics),
		state:             res.State,
	}, nil
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve [scenario.yaml]",
		Short: "Resolve conflicting room states",
		Long: `Resolve a set of room states with state resolution v2.

With a scenario file, the scenario DAG is replayed and the states before
END are resolved. Otherwise the named snapshots of a room are read from the
store and resolved against its events; --record stores the outcome so that
verify can check it later.

Exit codes:
  0 - Resolution succeeded
  2 - Command error (unknown snapshot, invalid input, etc.)

Examples:
  roomstate resolve ./scenarios/topic_reset.yaml
  roomstate resolve --db ./room.db --room '!test:foo' --snapshot PA --snapshot PB
  roomstate resolve --db ./room.db --room '!test:foo' --snapshot PA --snapshot PB --record --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runResolveScenario(cmd.Context(), opts, args[0], cmd)
			}
			return runResolveSnapshots(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $ROOMSTATE_DB)")
	cmd.Flags().StringVar(&opts.RoomID, "room", "", "room id of the snapshots")
	cmd.Flags().StringArrayVar(&opts.Snapshots, "snapshot", nil, "snapshot name to resolve (repeatable)")
	cmd.Flags().StringVar(&opts.RoomVersion, "room-version", "", "room version (default $ROOMSTATE_ROOM_VERSION)")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record the resolution in the store")

	return cmd
}

func runResolveScenario(ctx context.Context, opts *ResolveOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts.Snapshots) > 0 || opts.Record {
		return fail(formatter, ExitCommandError, ErrCodeInvalid, "--snapshot and --record need --db mode, not a scenario file", nil)
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

	end := testutil.EventID(harness.EndEvent)
	var prevs []string
	for _, step := range replay.Trace {
		if step.Event == end {
			prevs = step.Prev
		}
	}
	sets := make([]event.StateMap, len(prevs))
	for i, id := range prevs {
		sets[i] = replay.StateAt[id]
	}

	res, err := resolve.New(replay.Store, rules, resolve.WithLogger(opts.logger())).Resolve(ctx, sets)
	if err != nil {
		return resolveFailure(formatter, err)
	}
	out, err := newResolveOutput(testutil.RoomID, rules.ID, harness.ShortNames(prevs), res)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to hash state", err)
	}
	out.Scenario = scenario.Name
	return formatter.Success(out)
}

func runResolveSnapshots(ctx context.Context, opts *ResolveOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.RoomID == "" || len(opts.Snapshots) == 0 {
		return fail(formatter, ExitCommandError, ErrCodeInvalid, "either a scenario file or --room with at least one --snapshot is required", nil)
	}

	version := opts.roomVersion(opts.RoomVersion)
	rules, err := lookupRules(opts.registry(), version)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeVersion, "unusable room version", err)
	}

	st, err := store.Open(opts.dbPath(opts.Database))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	sets := make([]event.StateMap, 0, len(opts.Snapshots))
	for _, name := range opts.Snapshots {
		m, err := st.ReadSnapshot(ctx, opts.RoomID, name)
		if errors.Is(err, store.ErrSnapshotNotFound) {
			return fail(formatter, ExitCommandError, ErrCodeNotFound, "failed to read snapshot", err)
		}
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeStore, "failed to read snapshot", err)
		}
		sets = append(sets, m)
	}

	logger := opts.logger().With("room_id", opts.RoomID)
	res, err := resolve.New(st, rules, resolve.WithLogger(logger)).Resolve(ctx, sets)
	if err != nil {
		return resolveFailure(formatter, err)
	}
	out, err := newResolveOutput(opts.RoomID, rules.ID, opts.Snapshots, res)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to hash state", err)
	}

	if opts.Record {
		rec, err := st.WriteResolution(ctx, store.Resolution{
			RoomID:      opts.RoomID,
			RoomVersion: rules.ID,
			Snapshots:   opts.Snapshots,
			State:       res.State,
			StateHash:   out.StateHash,
			Diagnostics: len(res.Diagnostics),
		})
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeWriteFailed, "failed to record resolution", err)
		}
		out.ResolutionID = rec.ID
		out.Seq = rec.Seq
		logger.Info("recorded resolution", "id", rec.ID, "seq", rec.Seq, "state_hash", rec.StateHash)
	}
	return formatter.Success(out)
}

// lookupRules finds a room version that uses state resolution v2.
func lookupRules(reg *roomversion.Registry, version string) (roomversion.Rules, error) {
	rules, err := reg.Lookup(version)
	if err != nil {
		return roomversion.Rules{}, err
	}
	if !rules.Resolvable() {
		return roomversion.Rules{}, fmt.Errorf("room version %s does not use state resolution v2", version)
	}
	return rules, nil
}

// resolveFailure maps a resolver error to a CLI error code.
func resolveFailure(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	switch {
	case resolve.IsContractError(err):
		code = ErrCodeContract
	case resolve.IsUnsupportedVersion(err):
		code = ErrCodeVersion
	case resolve.IsStoreFailure(err):
		code = ErrCodeStore
	}
	return fail(formatter, ExitCommandError, code, "resolution failed", err)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nonNilDiagnostics(d []resolve.Diagnostic) []resolve.Diagnostic {
	if d == nil {
		return []resolve.Diagnostic{}
	}
	return d
}
