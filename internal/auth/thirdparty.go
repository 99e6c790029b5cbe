package auth

import (
	"errors"

	"github.com/roach88/roomstate/internal/event"
)

// InviteVerifier checks the signed block of a third-party invite against the
// public keys published by the matching m.room.third_party_invite event.
type InviteVerifier interface {
	VerifyThirdPartyInvite(ev *event.Event, invite *event.ThirdPartyInvite, publicKeys []string) error
}

// InviteVerifierFunc adapts a function to InviteVerifier.
type InviteVerifierFunc func(ev *event.Event, invite *event.ThirdPartyInvite, publicKeys []string) error

func (f InviteVerifierFunc) VerifyThirdPartyInvite(ev *event.Event, invite *event.ThirdPartyInvite, publicKeys []string) error {
	return f(ev, invite, publicKeys)
}

// DefaultInviteVerifier accepts an invite when keys were published and the
// signed block carries at least one signature. It does no cryptography.
type DefaultInviteVerifier struct{}

var (
	errNoPublicKeys = errors.New("third-party invite has no public keys")
	errNoSignatures = errors.New("signed block has no signatures")
)

func (DefaultInviteVerifier) VerifyThirdPartyInvite(_ *event.Event, invite *event.ThirdPartyInvite, publicKeys []string) error {
	if len(publicKeys) == 0 {
		return errNoPublicKeys
	}
	for _, keys := range invite.Signatures {
		if len(keys) > 0 {
			return nil
		}
	}
	return errNoSignatures
}

func (m *memberCheck) thirdPartyInvite(tpi *event.ThirdPartyInvite, verifier InviteVerifier) error {
	ev := m.ev
	if m.targetMembership == event.MembershipBan {
		return deny(ev, RuleThirdPartyInvite, "%s is banned", m.target)
	}
	if tpi.MXID != m.target {
		return deny(ev, RuleThirdPartyInvite, "signed mxid %s does not match %s", tpi.MXID, m.target)
	}
	original := m.state(event.KindThirdPartyInvite, tpi.Token)
	if original == nil {
		return deny(ev, RuleThirdPartyInvite, "no third-party invite for token %q", tpi.Token)
	}
	if original.Sender != ev.Sender {
		return deny(ev, RuleThirdPartyInvite, "token was issued by %s, not %s", original.Sender, ev.Sender)
	}
	keys, err := original.ThirdPartyPublicKeys()
	if err != nil {
		return denyMalformed(ev, err)
	}
	if err := verifier.VerifyThirdPartyInvite(ev, tpi, keys); err != nil {
		return &DeniedError{EventID: ev.ID, Rule: RuleThirdPartyInvite, Reason: err.Error(), Err: err}
	}
	return nil
}
