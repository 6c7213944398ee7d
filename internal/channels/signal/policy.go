package signal

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/sigclaw/internal/channels"
)

// AccessDecision is the outcome of evaluating access policy for one
// conversational message.
type AccessDecision int

const (
	DecisionAllow AccessDecision = iota
	DecisionDenySilent
	DecisionDenyPairing
)

// evaluateDM applies the direct-message policy:
// disabled beats everything; an allow-listed sender is always in; otherwise
// "open" admits, "pairing" asks for a code, anything else denies silently.
func evaluateDM(policy channels.DMPolicy, sender Identity, allowlist []string) AccessDecision {
	if policy == channels.DMPolicyDisabled {
		return DecisionDenySilent
	}
	if sender.InList(allowlist) {
		return DecisionAllow
	}
	switch policy {
	case channels.DMPolicyOpen:
		return DecisionAllow
	case channels.DMPolicyPairing:
		return DecisionDenyPairing
	default: // "allowlist" or unset
		return DecisionDenySilent
	}
}

// evaluateGroup applies the group policy and independently computes command
// authorization. Read access under "allowlist" requires a non-empty list
// containing the sender; command authorization defaults to true when the
// group allow-list is empty.
func evaluateGroup(policy channels.GroupPolicy, sender Identity, allowlist []string) (allowed, commandAuthorized bool) {
	commandAuthorized = len(allowlist) == 0 || sender.InList(allowlist)

	switch policy {
	case channels.GroupPolicyDisabled:
		return false, false
	case channels.GroupPolicyAllowlist:
		if len(allowlist) == 0 || !sender.InList(allowlist) {
			return false, commandAuthorized
		}
		return true, commandAuthorized
	default: // "open" or unset
		return true, commandAuthorized
	}
}

// effectiveAllowlist is the union of the static DM allow-list and the
// persisted store (approved pairings). The store is re-read per event so
// approvals granted while the monitor runs take effect immediately.
func (c *Channel) effectiveAllowlist(ctx context.Context) []string {
	list := append([]string(nil), c.cfg.AllowFrom...)
	stored, err := c.stores.Allowlist.Read(ctx, c.Name())
	if err != nil {
		slog.Warn("allowlist read failed, using static list only", "error", err)
		return list
	}
	return append(list, stored...)
}

// effectiveGroupAllowlist is the union of the static group allow-list and
// the persisted store.
func (c *Channel) effectiveGroupAllowlist(ctx context.Context) []string {
	list := append([]string(nil), c.cfg.GroupAllowFrom...)
	stored, err := c.stores.Allowlist.Read(ctx, c.Name())
	if err != nil {
		slog.Warn("allowlist read failed, using static group list only", "error", err)
		return list
	}
	return append(list, stored...)
}

// mentionsAccount reports whether any mention refers to the configured
// account (per-candidate, both identifier namespaces).
func mentionsAccount(mentions []Mention, account string) bool {
	for _, m := range mentions {
		if CandidateMatchesAccount(m.Number, account) || CandidateMatchesAccount(m.UUID, account) {
			return true
		}
	}
	return false
}
