package signal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/sigclaw/internal/sessions"
	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

// ReactionMode controls which reaction events raise a notification.
type ReactionMode string

const (
	ReactionOff       ReactionMode = "off"       // never notify
	ReactionOwn       ReactionMode = "own"       // only reactions to the bot's own messages
	ReactionAllowlist ReactionMode = "allowlist" // only reactions FROM allow-listed senders
	ReactionAll       ReactionMode = "all"       // every reaction
)

// ParseReactionMode maps a config string to a mode, defaulting to "own".
func ParseReactionMode(s string) ReactionMode {
	switch ReactionMode(strings.TrimSpace(s)) {
	case ReactionOff, ReactionOwn, ReactionAllowlist, ReactionAll:
		return ReactionMode(strings.TrimSpace(s))
	default:
		return ReactionOwn
	}
}

// reactionTargets returns the reacted-to author's identifier candidates in
// discovery order, deduplicated. A payload may carry a phone and a UUID for
// the same author at once; zero, one, or two candidates are all valid.
func reactionTargets(r *Reaction) []string {
	var out []string
	seen := make(map[string]bool, 3)
	for _, cand := range []string{r.TargetAuthor, r.TargetAuthorNumber, r.TargetAuthorUUID} {
		cand = strings.TrimSpace(cand)
		if cand == "" || seen[strings.ToLower(cand)] {
			continue
		}
		seen[strings.ToLower(cand)] = true
		out = append(out, cand)
	}
	return out
}

// shouldNotifyReaction is the reaction notification decision table.
//
// Removals never notify: a withdrawal is not a new event and there is no
// mechanism to retract an already-raised notification. In "own" mode EVERY
// target candidate is tried under its own namespace — a payload carrying
// both a UUID and a phone target must match when the configured account is
// a phone number and the phone candidate matches.
func shouldNotifyReaction(mode ReactionMode, account string, r *Reaction, sender Identity, allowlist []string) bool {
	if r.IsRemove {
		return false
	}
	switch mode {
	case ReactionOff:
		return false
	case ReactionAll:
		return true
	case ReactionAllowlist:
		return sender.InList(allowlist)
	default: // ReactionOwn
		for _, cand := range reactionTargets(r) {
			if CandidateMatchesAccount(cand, account) {
				return true
			}
		}
		return false
	}
}

// reactionContextKey builds the deterministic dedup key for a reaction
// notification: re-delivery of the same provider event maps to the same key,
// so the notification queue suppresses the repeat.
func reactionContextKey(r *Reaction, sender Identity, groupID string) string {
	return fmt.Sprintf("reaction:%d:%s:%s:%s", r.TargetSentTimestamp, sender.Key(), r.Emoji, groupID)
}

// buildReactionNotice renders the notification text: emoji, actor, target
// message id, target author label, and the group label when applicable.
func buildReactionNotice(r *Reaction, sender Identity, group *GroupInfo) string {
	target := r.TargetAuthor
	if target == "" {
		target = r.TargetAuthorNumber
	}
	if target == "" {
		target = r.TargetAuthorUUID
	}

	text := fmt.Sprintf("%s reacted %s to message %d from %s",
		sender.Label(), r.Emoji, r.TargetSentTimestamp, target)
	if group != nil {
		label := group.GroupName
		if label == "" {
			label = group.GroupID
		}
		text += fmt.Sprintf(" in %s", label)
	}
	return text
}

// handleReaction runs the reaction facet of a frame: decide, render, enqueue.
// The dedup queue is the authority on suppressing repeats.
func (c *Channel) handleReaction(ctx context.Context, dm *DataMessage, sender Identity) {
	r := dm.Reaction
	mode := ParseReactionMode(c.cfg.ReactionNotifications)
	allowlist := c.effectiveAllowlist(ctx)

	if !shouldNotifyReaction(mode, c.cfg.Account, r, sender, allowlist) {
		slog.Debug("reaction not notifiable", "mode", string(mode), "emoji", r.Emoji, "remove", r.IsRemove)
		return
	}

	peer := sessions.Peer{Kind: sessions.PeerDirect, ID: sender.Key()}
	groupID := ""
	if dm.GroupInfo != nil {
		groupID = dm.GroupInfo.GroupID
		peer = sessions.Peer{Kind: sessions.PeerGroup, ID: groupID}
	}
	route := sessions.ResolveRoute(c.rootCfg, c.Name(), c.cfg.Account, peer)

	text := buildReactionNotice(r, sender, dm.GroupInfo)
	created, err := c.stores.Notifications.Enqueue(ctx, text, store.NotificationOptions{
		SessionKey: route.SessionKey,
		ContextKey: reactionContextKey(r, sender, groupID),
	})
	if err != nil {
		slog.Warn("reaction notification enqueue failed", "error", err)
		return
	}
	if !created {
		slog.Debug("reaction notification suppressed as duplicate", "session", route.SessionKey)
		return
	}
	slog.Info("reaction notification enqueued", "session", route.SessionKey, "emoji", r.Emoji)
}
