package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/roomstate/internal/roomversion"
)

// VersionInfo describes one room version.
type VersionInfo struct {
	ID         string   `json:"id"`
	Stable     bool     `json:"stable"`
	Algorithm  int      `json:"state_res_algorithm"`
	Resolvable bool     `json:"resolvable"`
	Features   []string `json:"features"`
}

// VersionsResult lists the room versions the registry knows.
type VersionsResult struct {
	Versions []VersionInfo `json:"versions"`
}

// WriteText prints one version per line.
func (r *VersionsResult) WriteText(w io.Writer, verbose bool) {
	for _, v := range r.Versions {
		stability := "stable"
		if !v.Stable {
			stability = "unstable"
		}
		fmt.Fprintf(w, "%-24s %-8s state res v%d\n", v.ID, stability, v.Algorithm)
		if verbose && len(v.Features) > 0 {
			fmt.Fprintf(w, "  %s\n", strings.Join(v.Features, ", "))
		}
	}
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List known room versions",
		Long: `List the built-in room versions and any declared in the --rules file.

With --verbose the optional rules each version enables are listed too.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := rootOpts.registry()
			result := &VersionsResult{}
			for _, id := range reg.Known() {
				rules, err := reg.Lookup(id)
				if err != nil {
					return fail(rootOpts.formatter(cmd), ExitCommandError, ErrCodeVersion, "failed to look up room version", err)
				}
				result.Versions = append(result.Versions, describeVersion(rules))
			}
			return rootOpts.formatter(cmd).Success(result)
		},
	}
	return cmd
}

func describeVersion(r roomversion.Rules) VersionInfo {
	features := []string{}
	flag := func(on bool, name string) {
		if on {
			features = append(features, name)
		}
	}
	a := r.Auth
	flag(a.SpecialCaseAliases, "special_case_aliases_auth")
	flag(a.SpecialCaseRedaction, "special_case_redaction")
	flag(a.StrictCanonicalJSON, "strict_canonical_json")
	flag(a.LimitNotificationsPowerLevels, "limit_notifications_power_levels")
	flag(a.Knocking, "knocking")
	flag(a.RestrictedJoinRule, "restricted_join_rule")
	flag(a.KnockRestrictedJoinRule, "knock_restricted_join_rule")
	flag(a.IntegerPowerLevels, "integer_power_levels")
	flag(a.UseRoomCreateSender, "use_room_create_sender")
	flag(a.ExplicitlyPrivilegeRoomCreators, "explicitly_privilege_room_creators")
	flag(a.AdditionalRoomCreators, "additional_room_creators")
	flag(a.RoomCreateEventIDAsRoomID, "room_create_event_id_as_room_id")
	flag(r.StateRes.BeginWithEmptyStateMap, "begin_iterative_auth_checks_with_empty_state_map")
	flag(r.StateRes.ConsiderConflictedSubgraph, "consider_conflicted_state_subgraph")

	return VersionInfo{
		ID:         r.ID,
		Stable:     r.Stable,
		Algorithm:  int(r.StateRes.Algorithm),
		Resolvable: r.Resolvable(),
		Features:   features,
	}
}
