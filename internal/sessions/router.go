package sessions

import "github.com/nextlevelbuilder/sigclaw/internal/config"

// Peer identifies the conversation counterpart for routing purposes.
type Peer struct {
	Kind PeerKind
	ID   string
}

// Route is the resolved session routing for a (channel, account, peer) tuple.
type Route struct {
	SessionKey     string // scoped conversation session
	MainSessionKey string // the agent's shared main session
	AccountID      string
	AgentID        string
}

// ResolveRoute maps a (channel, account, peer) tuple to its session keys.
// Scoping follows the sessions config; the agent id comes from the agents
// config defaults.
func ResolveRoute(cfg *config.Config, channel, accountID string, peer Peer) Route {
	agentID := cfg.ResolveDefaultAgentID()
	return Route{
		SessionKey: BuildScopedSessionKey(agentID, channel, peer.Kind, peer.ID, accountID,
			cfg.Sessions.Scope, cfg.Sessions.DmScope, cfg.Sessions.MainKey),
		MainSessionKey: BuildAgentMainSessionKey(agentID, cfg.Sessions.MainKey),
		AccountID:      accountID,
		AgentID:        agentID,
	}
}
