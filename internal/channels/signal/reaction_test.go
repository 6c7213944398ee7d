package signal

import (
	"strings"
	"testing"
)

func TestParseReactionMode(t *testing.T) {
	tests := []struct {
		in   string
		want ReactionMode
	}{
		{"off", ReactionOff},
		{"own", ReactionOwn},
		{"allowlist", ReactionAllowlist},
		{"all", ReactionAll},
		{"", ReactionOwn},
		{"bogus", ReactionOwn},
	}
	for _, tt := range tests {
		if got := ParseReactionMode(tt.in); got != tt.want {
			t.Errorf("ParseReactionMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReactionTargets(t *testing.T) {
	tests := []struct {
		name string
		r    Reaction
		want []string
	}{
		{"no candidates", Reaction{}, nil},
		{"single phone", Reaction{TargetAuthorNumber: "+15550001111"}, []string{"+15550001111"}},
		{
			"phone and uuid",
			Reaction{TargetAuthorNumber: "+15550001111", TargetAuthorUUID: "93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d"},
			[]string{"+15550001111", "93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d"},
		},
		{
			"duplicate author and number deduped",
			Reaction{TargetAuthor: "+15550001111", TargetAuthorNumber: "+15550001111"},
			[]string{"+15550001111"},
		},
		{
			"case-insensitive dedup",
			Reaction{TargetAuthor: "93F4E852-0A2F-4C3B-9A6E-8D1F2A3B4C5D", TargetAuthorUUID: "93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d"},
			[]string{"93F4E852-0A2F-4C3B-9A6E-8D1F2A3B4C5D"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reactionTargets(&tt.r)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("target[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestShouldNotifyReaction(t *testing.T) {
	const account = "+15550001111"
	listed := Identity{Kind: KindPhone, Value: "+15550002222"}
	unlisted := Identity{Kind: KindPhone, Value: "+15550009999"}
	allowlist := []string{"+15550002222"}

	ownTarget := Reaction{Emoji: "👍", TargetAuthorNumber: account, TargetSentTimestamp: 17}
	otherTarget := Reaction{Emoji: "👍", TargetAuthorNumber: "+15550003333", TargetSentTimestamp: 17}
	bothTargets := Reaction{
		Emoji:               "🔥",
		TargetAuthorUUID:    "93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d",
		TargetAuthorNumber:  account,
		TargetSentTimestamp: 17,
	}

	tests := []struct {
		name   string
		mode   ReactionMode
		r      Reaction
		sender Identity
		want   bool
	}{
		{"own mode matching target", ReactionOwn, ownTarget, unlisted, true},
		{"own mode non-matching target", ReactionOwn, otherTarget, unlisted, false},
		{"own mode tries every candidate", ReactionOwn, bothTargets, unlisted, true},
		{"own mode uuid-only target vs phone account", ReactionOwn,
			Reaction{Emoji: "👍", TargetAuthorUUID: "93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d"}, unlisted, false},
		{"own mode no targets", ReactionOwn, Reaction{Emoji: "👍"}, unlisted, false},
		{"off never notifies", ReactionOff, ownTarget, listed, false},
		{"all notifies on any target", ReactionAll, otherTarget, unlisted, true},
		{"allowlist mode listed sender", ReactionAllowlist, otherTarget, listed, true},
		{"allowlist mode unlisted sender", ReactionAllowlist, ownTarget, unlisted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldNotifyReaction(tt.mode, account, &tt.r, tt.sender, allowlist); got != tt.want {
				t.Errorf("shouldNotifyReaction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldNotifyReactionRemovalNeverNotifies(t *testing.T) {
	const account = "+15550001111"
	r := Reaction{Emoji: "👍", TargetAuthorNumber: account, IsRemove: true}
	sender := Identity{Kind: KindPhone, Value: "+15550002222"}
	allowlist := []string{"+15550002222"}

	for _, mode := range []ReactionMode{ReactionOff, ReactionOwn, ReactionAllowlist, ReactionAll} {
		if shouldNotifyReaction(mode, account, &r, sender, allowlist) {
			t.Errorf("mode %q notified on removal", mode)
		}
	}
}

func TestReactionContextKeyDeterministic(t *testing.T) {
	r := Reaction{Emoji: "👍", TargetSentTimestamp: 1700000000123}
	sender := Identity{Kind: KindUUID, Value: "93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d"}

	k1 := reactionContextKey(&r, sender, "grp1")
	k2 := reactionContextKey(&r, sender, "grp1")
	if k1 != k2 {
		t.Errorf("same event produced different keys: %q vs %q", k1, k2)
	}
	if want := "reaction:1700000000123:uuid:93f4e852-0a2f-4c3b-9a6e-8d1f2a3b4c5d:👍:grp1"; k1 != want {
		t.Errorf("key = %q, want %q", k1, want)
	}
	if k3 := reactionContextKey(&r, sender, "grp2"); k3 == k1 {
		t.Error("different group produced identical key")
	}
	other := Identity{Kind: KindPhone, Value: "+15550001111"}
	if k4 := reactionContextKey(&r, other, "grp1"); k4 == k1 {
		t.Error("different sender produced identical key")
	}
}

func TestBuildReactionNotice(t *testing.T) {
	r := Reaction{Emoji: "👍", TargetAuthorNumber: "+15550001111", TargetSentTimestamp: 42}
	sender := Identity{Kind: KindPhone, Value: "+15550002222", Name: "Ana"}

	got := buildReactionNotice(&r, sender, nil)
	if want := "Ana reacted 👍 to message 42 from +15550001111"; got != want {
		t.Errorf("notice = %q, want %q", got, want)
	}

	got = buildReactionNotice(&r, sender, &GroupInfo{GroupID: "grp1", GroupName: "Team"})
	if !strings.HasSuffix(got, " in Team") {
		t.Errorf("group notice missing group name: %q", got)
	}

	got = buildReactionNotice(&r, sender, &GroupInfo{GroupID: "grp1"})
	if !strings.HasSuffix(got, " in grp1") {
		t.Errorf("group notice missing group id fallback: %q", got)
	}
}
