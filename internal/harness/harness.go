package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/testutil"
)

// Runner executes scenarios.
type Runner struct {
	registry *roomversion.Registry
	logger   *slog.Logger
}

// NewRunner creates a Runner. A nil registry resolves only the built-in
// room versions; a nil logger discards output.
func NewRunner(registry *roomversion.Registry, logger *slog.Logger) *Runner {
	if registry == nil {
		registry = roomversion.NewRegistry()
	}
	if logger == nil {
		logger = testutil.DiscardLogger()
	}
	return &Runner{registry: registry, logger: logger}
}

// Run executes a test scenario with the built-in room versions and logging
// discarded.
func Run(scenario *Scenario) (*Result, error) {
	return NewRunner(nil, nil).Run(context.Background(), scenario)
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Look up the room version rules
// 2. Replay the DAG, resolving state at every fork
// 3. Evaluate assertions against the state at END
func (r *Runner) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	version := scenario.RoomVersion
	if version == "" {
		version = DefaultRoomVersion
	}
	rules, err := r.registry.Lookup(version)
	if err != nil {
		return nil, err
	}
	if !rules.Resolvable() {
		return nil, fmt.Errorf("room version %s does not use state resolution v2", version)
	}

	replay, err := Grow(ctx, scenario, rules, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to replay scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.Trace = replay.Trace
	result.State = replay.EndState(nil)
	for _, step := range replay.Trace {
		if step.Resolved {
			result.Resolutions++
		}
	}

	for _, errMsg := range EvaluateAssertions(replay, scenario.Assertions) {
		result.AddError(errMsg)
	}

	r.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"room_version", version,
		"events", len(replay.Trace),
		"resolutions", result.Resolutions,
		"pass", result.Pass,
	)
	return result, nil
}
