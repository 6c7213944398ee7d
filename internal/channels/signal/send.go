package signal

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/sigclaw/internal/bus"
)

// Send delivers an outbound message through the daemon's JSON-RPC "send".
// ChatID is either a canonical sender key (direct) or a group id. Sends are
// paced by the channel's rate limiter.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate wait: %w", err)
	}

	params := map[string]any{
		"account": c.cfg.Account,
		"message": msg.Content,
	}
	if isGroupChatID(msg) {
		params["groupId"] = msg.ChatID
	} else {
		params["recipient"] = []string{recipientFromKey(msg.ChatID)}
	}
	if len(msg.Media) > 0 {
		params["attachments"] = msg.Media
	}

	if _, err := c.rpcCall(ctx, "send", params); err != nil {
		return fmt.Errorf("signal send to %s: %w", msg.ChatID, err)
	}
	return nil
}

// isGroupChatID distinguishes group targets from direct ones. The group
// marker metadata wins; otherwise anything that is neither phone- nor
// UUID-shaped is a group id (base64 blob).
func isGroupChatID(msg bus.OutboundMessage) bool {
	if msg.Metadata["group_id"] != "" {
		return true
	}
	id := strings.TrimPrefix(msg.ChatID, uuidKeyPrefix)
	return !IsPhoneLike(id) && !IsUUIDLike(id)
}

// recipientFromKey turns a canonical sender key back into a daemon
// recipient: "uuid:<u>" becomes the bare UUID, phones pass through.
func recipientFromKey(key string) string {
	return strings.TrimPrefix(key, uuidKeyPrefix)
}
