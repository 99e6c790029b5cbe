package roomversion

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// LoadError describes a problem in a room version CUE document.
type LoadError struct {
	Version string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	where := e.Field
	if e.Version != "" {
		where = "versions." + e.Version + "." + e.Field
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

var authFlags = map[string]func(*AuthRules) *bool{
	"special_case_aliases":               func(a *AuthRules) *bool { return &a.SpecialCaseAliases },
	"special_case_redaction":             func(a *AuthRules) *bool { return &a.SpecialCaseRedaction },
	"strict_canonical_json":              func(a *AuthRules) *bool { return &a.StrictCanonicalJSON },
	"limit_notifications_power_levels":   func(a *AuthRules) *bool { return &a.LimitNotificationsPowerLevels },
	"knocking":                           func(a *AuthRules) *bool { return &a.Knocking },
	"restricted_join_rule":               func(a *AuthRules) *bool { return &a.RestrictedJoinRule },
	"knock_restricted_join_rule":         func(a *AuthRules) *bool { return &a.KnockRestrictedJoinRule },
	"integer_power_levels":               func(a *AuthRules) *bool { return &a.IntegerPowerLevels },
	"use_room_create_sender":             func(a *AuthRules) *bool { return &a.UseRoomCreateSender },
	"explicitly_privilege_room_creators": func(a *AuthRules) *bool { return &a.ExplicitlyPrivilegeRoomCreators },
	"additional_room_creators":           func(a *AuthRules) *bool { return &a.AdditionalRoomCreators },
	"room_create_event_id_as_room_id":    func(a *AuthRules) *bool { return &a.RoomCreateEventIDAsRoomID },
}

var stateResFlags = map[string]func(*StateResRules) *bool{
	"begin_with_empty_state_map":   func(s *StateResRules) *bool { return &s.BeginWithEmptyStateMap },
	"consider_conflicted_subgraph": func(s *StateResRules) *bool { return &s.ConsiderConflictedSubgraph },
}

// LoadCUEFile reads a CUE document of custom room versions and registers
// them. See ParseCUE for the document shape.
func (r *Registry) LoadCUEFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read room version rules: %w", err)
	}
	versions, err := ParseCUE(path, data)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := r.Register(v); err != nil {
			return err
		}
	}
	return nil
}

// ParseCUE decodes custom room versions. Every version derives from a
// built-in base and overrides individual flags:
//
//	versions: "org.example.closed": {
//		base:   "11"
//		stable: false
//		auth: knocking: false
//		state_res: begin_with_empty_state_map: true
//	}
func ParseCUE(filename string, data []byte) ([]Rules, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	versionsVal := v.LookupPath(cue.ParsePath("versions"))
	if !versionsVal.Exists() {
		return nil, &LoadError{Field: "versions", Message: "versions is required", Pos: v.Pos()}
	}
	iter, err := versionsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []Rules
	for iter.Next() {
		rules, err := parseVersion(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rules)
	}
	return out, nil
}

func parseVersion(id string, v cue.Value) (Rules, error) {
	baseVal := v.LookupPath(cue.ParsePath("base"))
	if !baseVal.Exists() {
		return Rules{}, &LoadError{Version: id, Field: "base", Message: "base is required", Pos: v.Pos()}
	}
	baseID, err := baseVal.String()
	if err != nil {
		return Rules{}, formatCUEError(err)
	}
	rules, err := Lookup(baseID)
	if err != nil {
		return Rules{}, &LoadError{Version: id, Field: "base", Message: err.Error(), Pos: baseVal.Pos()}
	}
	rules.ID = id
	rules.Stable = false

	if stableVal := v.LookupPath(cue.ParsePath("stable")); stableVal.Exists() {
		if rules.Stable, err = stableVal.Bool(); err != nil {
			return Rules{}, formatCUEError(err)
		}
	}

	if authVal := v.LookupPath(cue.ParsePath("auth")); authVal.Exists() {
		if err := applyFlags(id, "auth", authVal, func(name string) *bool {
			if f, ok := authFlags[name]; ok {
				return f(&rules.Auth)
			}
			return nil
		}); err != nil {
			return Rules{}, err
		}
	}

	if srVal := v.LookupPath(cue.ParsePath("state_res")); srVal.Exists() {
		if err := applyFlags(id, "state_res", srVal, func(name string) *bool {
			if f, ok := stateResFlags[name]; ok {
				return f(&rules.StateRes)
			}
			return nil
		}); err != nil {
			return Rules{}, err
		}
	}

	return rules, nil
}

func applyFlags(id, section string, v cue.Value, lookup func(string) *bool) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		target := lookup(name)
		if target == nil {
			return &LoadError{Version: id, Field: section + "." + name, Message: "unknown flag", Pos: iter.Value().Pos()}
		}
		b, err := iter.Value().Bool()
		if err != nil {
			return formatCUEError(err)
		}
		*target = b
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
