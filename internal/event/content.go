package event

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// MalformedError reports event content that does not have the shape the
// authorization rules expect.
type MalformedError struct {
	EventID string
	Kind    Kind
	Field   string
	Reason  string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s content in %s: %s: %s", e.Kind, e.EventID, e.Field, e.Reason)
}

func (e *Event) malformed(field, reason string) *MalformedError {
	return &MalformedError{EventID: e.ID, Kind: e.Kind, Field: field, Reason: reason}
}

// root parses the content after checking it is a JSON object. Empty content
// yields a zero Result.
func (e *Event) root() (gjson.Result, error) {
	if len(e.Content) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(e.Content) {
		return gjson.Result{}, e.malformed("content", "invalid JSON")
	}
	root := gjson.ParseBytes(e.Content)
	if !root.IsObject() {
		return gjson.Result{}, e.malformed("content", "not an object")
	}
	return root, nil
}

func (e *Event) field(path string) (gjson.Result, error) {
	root, err := e.root()
	if err != nil {
		return gjson.Result{}, err
	}
	return root.Get(path), nil
}

// Membership returns the "membership" of an m.room.member event.
func (e *Event) Membership() (Membership, error) {
	r, err := e.field("membership")
	if err != nil {
		return "", err
	}
	if r.Type != gjson.String {
		return "", e.malformed("membership", "missing or not a string")
	}
	return Membership(r.String()), nil
}

// JoinRule returns the "join_rule" of an m.room.join_rules event.
func (e *Event) JoinRule() (JoinRule, error) {
	r, err := e.field("join_rule")
	if err != nil {
		return "", err
	}
	if r.Type != gjson.String {
		return "", e.malformed("join_rule", "missing or not a string")
	}
	return JoinRule(r.String()), nil
}

// JoinAuthorisedVia returns "join_authorised_via_users_server" of a member
// event, or "" when absent.
func (e *Event) JoinAuthorisedVia() (string, error) {
	r, err := e.field("join_authorised_via_users_server")
	if err != nil || !r.Exists() || r.Type == gjson.Null {
		return "", err
	}
	if r.Type != gjson.String || !ValidUserID(r.String()) {
		return "", e.malformed("join_authorised_via_users_server", "not a user id")
	}
	return r.String(), nil
}

// ThirdPartyInvite is the "third_party_invite" block of an invite.
type ThirdPartyInvite struct {
	Token      string
	MXID       string
	Signatures map[string]map[string]string
	// Signed is the raw "signed" object, for verifiers that check signatures.
	Signed json.RawMessage
}

// ThirdPartyInvite returns the third-party invite block of a member event,
// or nil when the event has none.
func (e *Event) ThirdPartyInvite() (*ThirdPartyInvite, error) {
	r, err := e.field("third_party_invite")
	if err != nil || !r.Exists() || r.Type == gjson.Null {
		return nil, err
	}
	if !r.IsObject() {
		return nil, e.malformed("third_party_invite", "not an object")
	}
	signed := r.Get("signed")
	if !signed.IsObject() {
		return nil, e.malformed("third_party_invite.signed", "missing or not an object")
	}
	token := signed.Get("token")
	if token.Type != gjson.String {
		return nil, e.malformed("third_party_invite.signed.token", "missing or not a string")
	}
	mxid := signed.Get("mxid")
	if mxid.Type != gjson.String {
		return nil, e.malformed("third_party_invite.signed.mxid", "missing or not a string")
	}

	tpi := &ThirdPartyInvite{
		Token:      token.String(),
		MXID:       mxid.String(),
		Signatures: map[string]map[string]string{},
		Signed:     json.RawMessage(signed.Raw),
	}
	sigs := signed.Get("signatures")
	if sigs.Exists() && !sigs.IsObject() {
		return nil, e.malformed("third_party_invite.signed.signatures", "not an object")
	}
	var bad bool
	sigs.ForEach(func(server, keys gjson.Result) bool {
		if !keys.IsObject() {
			bad = true
			return false
		}
		byKey := map[string]string{}
		keys.ForEach(func(keyID, sig gjson.Result) bool {
			byKey[keyID.String()] = sig.String()
			return true
		})
		tpi.Signatures[server.String()] = byKey
		return true
	})
	if bad {
		return nil, e.malformed("third_party_invite.signed.signatures", "server entry not an object")
	}
	return tpi, nil
}

// ThirdPartyPublicKeys returns the base64 public keys declared by an
// m.room.third_party_invite event: "public_key" followed by every
// "public_keys[].public_key".
func (e *Event) ThirdPartyPublicKeys() ([]string, error) {
	var keys []string
	single, err := e.field("public_key")
	if err != nil {
		return nil, err
	}
	if single.Exists() {
		if single.Type != gjson.String {
			return nil, e.malformed("public_key", "not a string")
		}
		keys = append(keys, single.String())
	}

	list, _ := e.field("public_keys")
	if !list.Exists() {
		return keys, nil
	}
	if !list.IsArray() {
		return nil, e.malformed("public_keys", "not an array")
	}
	for i, entry := range list.Array() {
		pk := entry.Get("public_key")
		if pk.Type != gjson.String {
			return nil, e.malformed(fmt.Sprintf("public_keys[%d].public_key", i), "missing or not a string")
		}
		keys = append(keys, pk.String())
	}
	return keys, nil
}

// Creator returns the "creator" field of a create event, or "" when absent.
func (e *Event) Creator() (string, error) {
	r, err := e.field("creator")
	if err != nil || !r.Exists() {
		return "", err
	}
	if r.Type != gjson.String || !ValidUserID(r.String()) {
		return "", e.malformed("creator", "not a user id")
	}
	return r.String(), nil
}

// Federate returns "m.federate" of a create event. It defaults to true.
func (e *Event) Federate() (bool, error) {
	r, err := e.field(`m\.federate`)
	if err != nil {
		return false, err
	}
	switch r.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	}
	if r.Exists() {
		return false, e.malformed("m.federate", "not a boolean")
	}
	return true, nil
}

// AdditionalCreators returns "additional_creators" of a create event.
func (e *Event) AdditionalCreators() ([]string, error) {
	r, err := e.field("additional_creators")
	if err != nil || !r.Exists() {
		return nil, err
	}
	if !r.IsArray() {
		return nil, e.malformed("additional_creators", "not an array")
	}
	var users []string
	for _, u := range r.Array() {
		if u.Type != gjson.String || !ValidUserID(u.String()) {
			return nil, e.malformed("additional_creators", "entry is not a user id")
		}
		users = append(users, u.String())
	}
	return users, nil
}

// RedactsID returns the id a redaction targets, from the top-level field or
// from the content.
func (e *Event) RedactsID() string {
	if e.Redacts != "" {
		return e.Redacts
	}
	r, err := e.field("redacts")
	if err != nil || r.Type != gjson.String {
		return ""
	}
	return r.String()
}
