// Package auth implements the room authorization rules.
//
// Check decides whether one event is allowed against one hypothetical state
// snapshot. The snapshot is supplied as a StateFunc so callers can layer
// resolved state over an event's own auth events without copying maps.
//
// A denial is not a failure of the caller: Check returns a *DeniedError that
// names the rule that rejected the event. Content that cannot be parsed is a
// denial too, with the *event.MalformedError available through errors.As.
//
// Which optional rules apply is selected by roomversion.AuthRules; nothing in
// this package switches on version ids directly.
package auth
