package event

// Kind is an event type such as "m.room.member".
type Kind string

// Event kinds the authorization rules know about.
const (
	KindCreate           Kind = "m.room.create"
	KindMember           Kind = "m.room.member"
	KindPowerLevels      Kind = "m.room.power_levels"
	KindJoinRules        Kind = "m.room.join_rules"
	KindThirdPartyInvite Kind = "m.room.third_party_invite"
	KindAliases          Kind = "m.room.aliases"
	KindRedaction        Kind = "m.room.redaction"
	KindTopic            Kind = "m.room.topic"
	KindMessage          Kind = "m.room.message"
)

// Class is the closed set of kinds that the rule engine dispatches on.
// Every kind outside the set maps to ClassOther.
type Class int

const (
	ClassOther Class = iota
	ClassCreate
	ClassMember
	ClassPowerLevels
	ClassJoinRules
	ClassThirdPartyInvite
	ClassAliases
	ClassRedaction
)

var classNames = map[Class]string{
	ClassOther:            "other",
	ClassCreate:           "create",
	ClassMember:           "member",
	ClassPowerLevels:      "power_levels",
	ClassJoinRules:        "join_rules",
	ClassThirdPartyInvite: "third_party_invite",
	ClassAliases:          "aliases",
	ClassRedaction:        "redaction",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// Class returns the rule class of the kind.
func (k Kind) Class() Class {
	switch k {
	case KindCreate:
		return ClassCreate
	case KindMember:
		return ClassMember
	case KindPowerLevels:
		return ClassPowerLevels
	case KindJoinRules:
		return ClassJoinRules
	case KindThirdPartyInvite:
		return ClassThirdPartyInvite
	case KindAliases:
		return ClassAliases
	case KindRedaction:
		return ClassRedaction
	default:
		return ClassOther
	}
}

// Membership is the value of an m.room.member "membership" field.
type Membership string

const (
	MembershipJoin   Membership = "join"
	MembershipInvite Membership = "invite"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
	MembershipKnock  Membership = "knock"
)

// JoinRule is the value of an m.room.join_rules "join_rule" field.
// Unknown rules are kept verbatim and never allow a join.
type JoinRule string

const (
	JoinRulePublic          JoinRule = "public"
	JoinRuleInvite          JoinRule = "invite"
	JoinRuleKnock           JoinRule = "knock"
	JoinRuleRestricted      JoinRule = "restricted"
	JoinRuleKnockRestricted JoinRule = "knock_restricted"
	JoinRulePrivate         JoinRule = "private"
)
