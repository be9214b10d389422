package transcript

import (
	"log/slog"
)

// Role is the relative role of an exchange entry. It says who spoke with
// respect to the exchange, not which participant it was.
type Role int

const (
	// RoleUnknown marks a malformed entry. Such entries are skipped.
	RoleUnknown Role = iota

	// RoleInitiator is the participant who opened the exchange.
	RoleInitiator

	// RoleResponder is the other participant.
	RoleResponder

	// RoleSystem carries engine notices. Never shown in the transcript.
	RoleSystem
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseRole converts a wire name into a Role. Unrecognised names yield
// [RoleUnknown].
func ParseRole(s string) Role {
	switch s {
	case "initiator":
		return RoleInitiator
	case "responder":
		return RoleResponder
	case "system":
		return RoleSystem
	default:
		return RoleUnknown
	}
}

// Entry is one line of an exchange as produced by the agent engine.
type Entry struct {
	Role Role
	Text string
}

// ExchangeRecord is the ordered output of one bounded exchange.
type ExchangeRecord struct {
	// Initiator is the participant who opened the exchange.
	Initiator Identity

	// Responder is the participant the exchange was addressed to.
	Responder Identity

	// Entries are the exchange lines in the order they were produced.
	Entries []Entry
}

// Pair is the fixed set of two participants.
type Pair struct {
	A, B Identity
}

// Contains reports whether id is one of the two participants.
func (p Pair) Contains(id Identity) bool {
	return id == p.A || id == p.B
}

// Other returns the partner of id. The result is meaningless when id is not
// part of the pair; callers validate with [Pair.Contains] first.
func (p Pair) Other(id Identity) Identity {
	if id == p.A {
		return p.B
	}
	return p.A
}

// Turn is a mapped exchange line awaiting append.
type Turn struct {
	Speaker Identity
	Text    string
}

// Map resolves the relative roles in rec into speaker identities.
//
// The speaker of each line is decided only by rec.Initiator and the line's
// role; the text is never inspected. System lines, unknown roles and empty
// texts are dropped.
func Map(rec ExchangeRecord, pair Pair) []Turn {
	responder := pair.Other(rec.Initiator)
	turns := make([]Turn, 0, len(rec.Entries))
	for i, e := range rec.Entries {
		var speaker Identity
		switch e.Role {
		case RoleInitiator:
			speaker = rec.Initiator
		case RoleResponder:
			speaker = responder
		case RoleSystem:
			continue
		default:
			slog.Debug("transcript: skipping entry with unknown role", "index", i, "role", e.Role.String())
			continue
		}
		if e.Text == "" {
			slog.Debug("transcript: skipping empty entry", "index", i, "role", e.Role.String())
			continue
		}
		turns = append(turns, Turn{Speaker: speaker, Text: e.Text})
	}
	return turns
}

// Apply maps rec and appends the result to store in entry order. It returns
// the appended messages.
func Apply(store *Store, rec ExchangeRecord, pair Pair) []Message {
	turns := Map(rec, pair)
	if len(turns) == 0 {
		return nil
	}
	start := store.Len()
	for _, t := range turns {
		store.Append(t.Speaker, t.Text)
	}
	return store.Since(start)
}
