package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/resolve"
	"github.com/roach88/roomstate/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	RoomID   string // optional - specific room only
}

// VerifiedResolution holds the verification result for one record.
type VerifiedResolution struct {
	ID           string   `json:"id"`
	Seq          int64    `json:"seq"`
	RoomID       string   `json:"room_id"`
	RoomVersion  string   `json:"room_version"`
	Snapshots    []string `json:"snapshots"`
	RecordedHash string   `json:"recorded_hash"`
	ComputedHash string   `json:"computed_hash,omitempty"`
	Match        bool     `json:"match"`
	Error        string   `json:"error,omitempty"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Resolutions []VerifiedResolution `json:"resolutions"`
	Total       int                  `json:"total"`
	Mismatched  int                  `json:"mismatched"`
	AllMatch    bool                 `json:"all_match"`
}

// WriteText prints one line per recorded resolution.
func (r *VerifyResult) WriteText(w io.Writer, verbose bool) {
	if r.Total == 0 {
		fmt.Fprintln(w, "No resolutions recorded.")
		return
	}
	for _, v := range r.Resolutions {
		status := "ok"
		if !v.Match {
			status = "MISMATCH"
		}
		fmt.Fprintf(w, "%-8s #%d %s %s %v\n", status, v.Seq, v.RoomID, v.RoomVersion, v.Snapshots)
		if v.Error != "" {
			fmt.Fprintf(w, "  %s\n", v.Error)
		}
		if verbose || !v.Match {
			fmt.Fprintf(w, "  recorded: %s\n", v.RecordedHash)
			fmt.Fprintf(w, "  computed: %s\n", v.ComputedHash)
		}
	}
	fmt.Fprintf(w, "\nVerified %d resolution(s), %d mismatched\n", r.Total, r.Mismatched)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute recorded resolutions and compare",
		Long: `Recompute every recorded resolution from its snapshots and compare the
state hash with the recorded one.

A mismatch means the snapshots or events changed since the record was made,
or that resolution is not deterministic.

Exit codes:
  0 - Every resolution matches
  1 - At least one resolution differs
  2 - Command error (database not found, etc.)

Examples:
  roomstate verify --db ./room.db
  roomstate verify --db ./room.db --room '!test:foo'
  roomstate verify --db ./room.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $ROOMSTATE_DB)")
	cmd.Flags().StringVar(&opts.RoomID, "room", "", "verify a specific room only")

	return cmd
}

func runVerify(ctx context.Context, opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.dbPath(opts.Database))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.ListResolutions(ctx, opts.RoomID)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "failed to list resolutions", err)
	}

	result := &VerifyResult{
		Resolutions: make([]VerifiedResolution, 0, len(records)),
		Total:       len(records),
		AllMatch:    true,
	}
	for _, rec := range records {
		v := verifyResolution(ctx, opts, st, rec)
		result.Resolutions = append(result.Resolutions, v)
		if !v.Match {
			result.Mismatched++
			result.AllMatch = false
		}
	}

	if !result.AllMatch {
		message := fmt.Sprintf("%d resolution(s) differ from their record", result.Mismatched)
		if err := formatter.Failure(result, ErrCodeMismatch, message); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}
	return formatter.Success(result)
}

// verifyResolution resolves the recorded inputs again. Any failure to do
// so counts as a mismatch.
func verifyResolution(ctx context.Context, opts *VerifyOptions, st *store.Store, rec store.Resolution) VerifiedResolution {
	v := VerifiedResolution{
		ID:           rec.ID,
		Seq:          rec.Seq,
		RoomID:       rec.RoomID,
		RoomVersion:  rec.RoomVersion,
		Snapshots:    rec.Snapshots,
		RecordedHash: rec.StateHash,
	}
	logger := opts.logger().With("resolution", rec.ID, "room_id", rec.RoomID)

	rules, err := lookupRules(opts.registry(), rec.RoomVersion)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	sets, err := st.ReplayInputs(ctx, rec)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	res, err := resolve.New(st, rules, resolve.WithLogger(logger)).Resolve(ctx, sets)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	if v.ComputedHash, err = event.StateHash(res.State); err != nil {
		v.Error = err.Error()
		return v
	}

	v.Match = v.ComputedHash == rec.StateHash
	if !v.Match {
		logger.Warn("resolution differs from record", "recorded", rec.StateHash, "computed", v.ComputedHash)
	}
	return v
}
