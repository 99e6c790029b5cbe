package auth

import (
	"errors"
	"fmt"

	"github.com/roach88/roomstate/internal/event"
)

// Rule names used in DeniedError.Rule.
const (
	RuleCreate           = "create"
	RuleCreateMissing    = "create_missing"
	RuleFederation       = "federation"
	RuleAliases          = "aliases"
	RuleMembership       = "membership"
	RuleSenderJoined     = "sender_joined"
	RuleThirdPartyInvite = "third_party_invite"
	RuleEventLevel       = "event_level"
	RuleStateKeyUser     = "state_key_user"
	RulePowerLevels      = "power_levels"
	RuleRedaction        = "redaction"
	RuleContent          = "content"
	RuleAuthEvents       = "auth_events"
)

// DeniedError explains why an event was not authorized.
type DeniedError struct {
	EventID string
	Rule    string
	Reason  string
	// Err is the underlying cause, usually an *event.MalformedError.
	Err error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("event %s denied by %s rule: %s", e.EventID, e.Rule, e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return e.Err
}

func deny(ev *event.Event, rule, format string, args ...any) *DeniedError {
	return &DeniedError{EventID: ev.ID, Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// denyMalformed turns a content error into a denial.
func denyMalformed(ev *event.Event, err error) *DeniedError {
	return &DeniedError{EventID: ev.ID, Rule: RuleContent, Reason: err.Error(), Err: err}
}

// IsDenied reports whether err is an authorization denial.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}

// IsMalformed reports whether err was caused by unparseable content.
func IsMalformed(err error) bool {
	var me *event.MalformedError
	return errors.As(err, &me)
}
