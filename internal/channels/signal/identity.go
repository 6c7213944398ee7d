package signal

import (
	"strings"

	"github.com/google/uuid"
)

// Signal reports actors under two identifier namespaces: E.164 phone numbers
// and opaque account UUIDs. The same logical actor can arrive typed either
// way, and the correct comparison depends on which namespace the bot's own
// account is configured with. Identity is therefore a tagged value, and
// matching is always performed per candidate under that candidate's own
// namespace — never by collapsing to a single preferred identifier first.

// IdentityKind tags the namespace an identity value belongs to.
type IdentityKind string

const (
	KindPhone IdentityKind = "phone"
	KindUUID  IdentityKind = "uuid"
)

// Identity is a resolved sender identity. Derived once per envelope,
// immutable thereafter.
type Identity struct {
	Kind  IdentityKind
	Value string // normalized E.164 phone or lowercase UUID
	Name  string // optional display name
}

// uuidKeyPrefix namespaces UUID identities in pairing/allowlist keys so they
// cannot collide with phone-shaped entries.
const uuidKeyPrefix = "uuid:"

// NormalizePhone strips formatting separators from a phone-like string,
// keeping a leading "+" and digits only.
func NormalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPhoneLike reports whether s looks like a phone number: an optional
// leading "+" and at least five digits, allowing common separators.
func IsPhoneLike(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 5
}

// IsUUIDLike reports whether s parses as a UUID.
func IsUUIDLike(s string) bool {
	_, err := uuid.Parse(strings.TrimSpace(s))
	return err == nil
}

// ResolveSender derives the sender identity from an envelope's source fields.
// When both a number and a UUID are present, the namespace matching the
// configured account wins, so downstream identity-equality comparisons stay
// within one namespace. Returns false when no identity can be derived (the
// event must then be dropped).
func ResolveSender(env *Envelope, account string) (Identity, bool) {
	num := strings.TrimSpace(env.SourceNumber)
	uid := strings.TrimSpace(env.SourceUUID)

	// Older daemons report only "source", carrying either namespace.
	if src := strings.TrimSpace(env.Source); src != "" {
		if num == "" && IsPhoneLike(src) {
			num = src
		}
		if uid == "" && IsUUIDLike(src) {
			uid = src
		}
	}

	switch {
	case num != "" && uid != "":
		if IsPhoneLike(account) {
			return Identity{Kind: KindPhone, Value: NormalizePhone(num), Name: env.SourceName}, true
		}
		return Identity{Kind: KindUUID, Value: strings.ToLower(uid), Name: env.SourceName}, true
	case num != "":
		return Identity{Kind: KindPhone, Value: NormalizePhone(num), Name: env.SourceName}, true
	case uid != "":
		return Identity{Kind: KindUUID, Value: strings.ToLower(uid), Name: env.SourceName}, true
	}
	return Identity{}, false
}

// Key returns the canonical sender key used for pairing requests, allow-list
// entries, and session peers: the normalized E.164 form for phones, or
// "uuid:<lowercase-uuid>" for UUIDs.
func (id Identity) Key() string {
	if id.Kind == KindUUID {
		return uuidKeyPrefix + id.Value
	}
	return id.Value
}

// Label returns a human-readable form: the display name when known,
// otherwise the identifier value.
func (id Identity) Label() string {
	if id.Name != "" {
		return id.Name
	}
	return id.Value
}

// MatchesEntry reports whether an allow-list entry refers to this identity.
// The entry is interpreted under its own namespace.
func (id Identity) MatchesEntry(entry string) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return false
	}
	switch id.Kind {
	case KindPhone:
		return IsPhoneLike(entry) && NormalizePhone(entry) == id.Value
	case KindUUID:
		e := strings.ToLower(strings.TrimPrefix(strings.ToLower(entry), uuidKeyPrefix))
		return e == id.Value
	}
	return false
}

// InList reports whether any entry of the allow-list matches this identity.
func (id Identity) InList(list []string) bool {
	for _, entry := range list {
		if id.MatchesEntry(entry) {
			return true
		}
	}
	return false
}

// CandidateMatchesAccount reports whether a raw identifier candidate refers
// to the configured account, matched under the CANDIDATE's namespace:
// phone-shaped candidates by normalized-phone equality, UUID candidates by
// exact or key-prefixed equality. Opaque (neither-shaped) values fall back
// to literal comparison.
func CandidateMatchesAccount(candidate, account string) bool {
	candidate = strings.TrimSpace(candidate)
	account = strings.TrimSpace(account)
	if candidate == "" || account == "" {
		return false
	}
	if IsUUIDLike(candidate) {
		c := strings.ToLower(candidate)
		a := strings.ToLower(strings.TrimPrefix(strings.ToLower(account), uuidKeyPrefix))
		return c == a
	}
	if IsPhoneLike(candidate) && IsPhoneLike(account) {
		return NormalizePhone(candidate) == NormalizePhone(account)
	}
	return candidate == account
}
