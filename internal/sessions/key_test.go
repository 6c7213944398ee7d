package sessions

import (
	"testing"

	"github.com/nextlevelbuilder/sigclaw/internal/config"
)

func TestBuildSessionKey(t *testing.T) {
	tests := []struct {
		name string
		kind PeerKind
		chat string
		want string
	}{
		{"dm", PeerDirect, "+15550001111", "agent:default:signal:direct:+15550001111"},
		{"group", PeerGroup, "dGVzdA==", "agent:default:signal:group:dGVzdA=="},
		{"uuid peer", PeerDirect, "uuid:93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d", "agent:default:signal:direct:uuid:93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSessionKey("default", "signal", tt.kind, tt.chat); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildScopedSessionKey(t *testing.T) {
	tests := []struct {
		name    string
		kind    PeerKind
		scope   string
		dmScope string
		want    string
	}{
		{"global scope wins", PeerDirect, "global", "per-peer", "global"},
		{"default per-channel-peer", PeerDirect, "", "", "agent:default:signal:direct:+15550001111"},
		{"per-peer", PeerDirect, "per-sender", "per-peer", "agent:default:direct:+15550001111"},
		{"main", PeerDirect, "per-sender", "main", "agent:default:main"},
		{"per-account-channel-peer", PeerDirect, "per-sender", "per-account-channel-peer", "agent:default:signal:+15559990000:direct:+15550001111"},
		{"groups ignore dm scope", PeerGroup, "per-sender", "main", "agent:default:signal:group:+15550001111"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildScopedSessionKey("default", "signal", tt.kind, "+15550001111", "+15559990000", tt.scope, tt.dmScope, "")
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSessionKey(t *testing.T) {
	agentID, rest := ParseSessionKey("agent:default:signal:direct:+15550001111")
	if agentID != "default" || rest != "signal:direct:+15550001111" {
		t.Errorf("got (%q, %q)", agentID, rest)
	}
	if a, r := ParseSessionKey("bogus"); a != "" || r != "" {
		t.Errorf("malformed key parsed to (%q, %q)", a, r)
	}
}

func TestResolveRoute(t *testing.T) {
	cfg := config.Default()
	route := ResolveRoute(cfg, "signal", "+15559990000", Peer{Kind: PeerDirect, ID: "+15550001111"})

	if route.SessionKey != "agent:default:signal:direct:+15550001111" {
		t.Errorf("session key = %q", route.SessionKey)
	}
	if route.MainSessionKey != "agent:default:main" {
		t.Errorf("main session key = %q", route.MainSessionKey)
	}
	if route.AgentID != "default" || route.AccountID != "+15559990000" {
		t.Errorf("route = %+v", route)
	}

	cfg.Agents.DefaultID = "ops"
	cfg.Sessions.DmScope = "main"
	cfg.Sessions.MainKey = "shared"
	route = ResolveRoute(cfg, "signal", "+15559990000", Peer{Kind: PeerDirect, ID: "+15550001111"})
	if route.SessionKey != "agent:ops:shared" {
		t.Errorf("scoped session key = %q", route.SessionKey)
	}
}
