package bus

import "context"

// InboundMessage represents a conversational message received from a channel.
// It is the canonical message context handed to the reply pipeline: sender,
// recipient, body text, media references, authorization flag, session key.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	Media      []string          `json:"media,omitempty"`
	SessionKey string            `json:"session_key"`
	PeerKind   string            `json:"peer_kind,omitempty"` // "direct" or "group"
	AgentID    string            `json:"agent_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`   // external user ID for per-user scoping
	Authorized bool              `json:"authorized"`          // command authorization (may diverge from read access in groups)
	Timestamp  int64             `json:"timestamp,omitempty"` // provider timestamp (unix millis)
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []string          `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MessageRouter abstracts inbound/outbound message routing between channels
// and the reply pipeline.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
