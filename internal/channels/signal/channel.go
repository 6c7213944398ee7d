// Package signal implements the Signal channel: it consumes the signal-cli
// daemon's event stream, reconstructs canonical sender identity across the
// phone-number and account-UUID namespaces, applies DM/group access policy
// (with pairing-code bootstrap), and raises deduplicated reaction
// notifications.
package signal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/sigclaw/internal/bus"
	"github.com/nextlevelbuilder/sigclaw/internal/channels"
	"github.com/nextlevelbuilder/sigclaw/internal/config"
	"github.com/nextlevelbuilder/sigclaw/internal/sessions"
	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

// Channel connects to a signal-cli daemon over HTTP. The daemon owns the
// Signal protocol; this channel consumes its event stream and sends through
// its JSON-RPC endpoint.
type Channel struct {
	*channels.BaseChannel
	cfg     config.SignalConfig
	rootCfg *config.Config
	stores  *store.Stores

	httpc   *http.Client // RPC + attachment fetch
	streamc *http.Client // event stream (no client timeout)
	limiter *rate.Limiter
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// test hooks
	backoff      func(attempt int) time.Duration
	readyTimeout time.Duration
}

// frameGuard is shared by both facets of one frame so per-conversation side
// effects fire at most once per frame even when the frame triggers both the
// reaction and the conversational path.
type frameGuard struct {
	mu            sync.Mutex
	pairingIssued bool
}

// New creates the Signal channel from config.
func New(cfg *config.Config, msgBus *bus.MessageBus, stores *store.Stores) (*Channel, error) {
	sc := cfg.Signal
	if sc.Account == "" {
		return nil, fmt.Errorf("signal account is required")
	}
	if sc.HTTPURL == "" {
		return nil, fmt.Errorf("signal http_url is required")
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("signal", msgBus),
		cfg:         sc,
		rootCfg:     cfg,
		stores:      stores,
		httpc:       &http.Client{Timeout: 30 * time.Second},
		streamc:     &http.Client{},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 5),
		tracer:      otel.Tracer("sigclaw/signal"),
		backoff:     defaultBackoff,
		readyTimeout: 30 * time.Second,
	}, nil
}

// Start waits for the daemon to become reachable, then begins consuming the
// event stream. A readiness timeout is fatal and aborts startup; stream
// failures after that are retried internally.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting signal channel", "account", c.cfg.Account, "url", c.cfg.HTTPURL, "transport", c.transport())

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.waitDaemonReady(c.ctx); err != nil {
		c.cancel()
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.streamLoop(c.ctx)
	}()

	c.SetRunning(true)
	return nil
}

// Stop cancels the stream loop and waits for in-flight handlers.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping signal channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.SetRunning(false)
	return nil
}

// handleReceive processes one decoded frame. Reaction and conversational
// content are independent facets of the same frame: both run, each isolated,
// sharing a per-frame guard for conversation-level side effects.
func (c *Channel) handleReceive(ctx context.Context, rcv *Receive) {
	if rcv.Exception != nil {
		slog.Warn("signal daemon reported exception in frame", "message", rcv.Exception.Message, "type", rcv.Exception.Type)
	}
	env := rcv.Envelope
	if env == nil {
		return
	}

	// Sync echoes, typing indicators, and receipts carry no inbound intent.
	if env.SyncMessage != nil || env.TypingMessage != nil || env.ReceiptMessage != nil {
		slog.Debug("ignoring non-conversational envelope", "timestamp", env.Timestamp)
		return
	}

	sender, ok := ResolveSender(env, c.cfg.Account)
	if !ok {
		slog.Debug("envelope without sender identity dropped", "timestamp", env.Timestamp)
		return
	}

	// Loop prevention: the bot's own account never feeds the pipeline.
	if CandidateMatchesAccount(sender.Value, c.cfg.Account) {
		slog.Debug("self message dropped", "timestamp", env.Timestamp)
		return
	}

	guard := &frameGuard{}

	if env.DataMessage != nil && env.DataMessage.Reaction != nil {
		c.handleReaction(ctx, env.DataMessage, sender)
	}
	c.handleMessage(ctx, env, sender, guard)
}

// handleMessage runs the conversational facet: policy evaluation, pairing
// bootstrap, attachment download, and publication to the reply pipeline.
// Frames without conversational content are a no-op here.
func (c *Channel) handleMessage(ctx context.Context, env *Envelope, sender Identity, guard *frameGuard) {
	dm := env.DataMessage
	metadata := map[string]string{}

	if env.EditMessage != nil && env.EditMessage.DataMessage != nil {
		dm = env.EditMessage.DataMessage
		metadata["edit_target_timestamp"] = fmt.Sprintf("%d", env.EditMessage.TargetSentTimestamp)
	}
	if dm == nil {
		return
	}
	if dm.Message == "" && len(dm.Attachments) == 0 {
		return
	}

	group := dm.GroupInfo
	peerKind := sessions.PeerDirect
	chatID := sender.Key()
	authorized := true

	if group == nil {
		decision := evaluateDM(c.dmPolicy(), sender, c.effectiveAllowlist(ctx))
		switch decision {
		case DecisionDenySilent:
			slog.Debug("signal DM rejected by policy", "sender", sender.Key(), "policy", string(c.dmPolicy()))
			return
		case DecisionDenyPairing:
			c.issuePairing(ctx, sender, chatID, guard)
			return
		}
	} else {
		peerKind = sessions.PeerGroup
		chatID = group.GroupID
		var allowed bool
		allowed, authorized = evaluateGroup(c.groupPolicy(), sender, c.effectiveGroupAllowlist(ctx))
		if !allowed {
			slog.Debug("signal group message rejected by policy", "sender", sender.Key(), "group", chatID)
			return
		}
		if c.cfg.RequireMention && !mentionsAccount(dm.Mentions, c.cfg.Account) {
			slog.Debug("signal group message without mention dropped", "group", chatID)
			return
		}
		metadata["group_id"] = chatID
		if group.GroupName != "" {
			metadata["group_name"] = group.GroupName
		}
	}

	media := c.downloadAttachments(ctx, dm.Attachments)

	route := sessions.ResolveRoute(c.rootCfg, c.Name(), c.cfg.Account, sessions.Peer{Kind: peerKind, ID: chatID})
	metadata["message_timestamp"] = fmt.Sprintf("%d", env.Timestamp)
	if sender.Name != "" {
		metadata["user_name"] = sender.Name
	}

	slog.Debug("signal message received",
		"sender", sender.Key(),
		"chat_id", chatID,
		"preview", channels.Truncate(dm.Message, 50),
	)

	c.Bus().PublishInbound(bus.InboundMessage{
		Channel:    c.Name(),
		SenderID:   sender.Key(),
		SenderName: sender.Name,
		ChatID:     chatID,
		Content:    dm.Message,
		Media:      media,
		SessionKey: route.SessionKey,
		PeerKind:   string(peerKind),
		AgentID:    route.AgentID,
		UserID:     sender.Key(),
		Authorized: authorized,
		Timestamp:  env.Timestamp,
		Metadata:   metadata,
	})
}

// issuePairing creates (or finds pending) a pairing request and sends the
// code, exactly once per distinct pending request and at most once per
// frame via the guard.
func (c *Channel) issuePairing(ctx context.Context, sender Identity, chatID string, guard *frameGuard) {
	guard.mu.Lock()
	if guard.pairingIssued {
		guard.mu.Unlock()
		return
	}
	guard.pairingIssued = true
	guard.mu.Unlock()

	req, err := c.stores.Pairing.Upsert(ctx, c.Name(), sender.Key(), store.PairingMeta{
		Name:   sender.Name,
		ChatID: chatID,
	})
	if err != nil {
		slog.Warn("pairing request failed", "sender", sender.Key(), "error", err)
		return
	}
	if !req.Created {
		// Already pending: do not re-send the code.
		slog.Debug("pairing request already pending", "sender", sender.Key())
		return
	}

	reply := fmt.Sprintf(
		"sigclaw: access not configured.\n\nYour Signal ID: %s\n\nPairing code: %s\n\nAsk the bot owner to approve with:\n  sigclaw pairing approve %s",
		sender.Key(), req.Code, req.Code,
	)
	if err := c.Send(ctx, bus.OutboundMessage{Channel: c.Name(), ChatID: chatID, Content: reply}); err != nil {
		slog.Warn("failed to send pairing reply", "sender", sender.Key(), "error", err)
		return
	}
	slog.Info("pairing reply sent", "sender", sender.Key(), "code", req.Code)
}

func (c *Channel) dmPolicy() channels.DMPolicy {
	if p := strings.TrimSpace(c.cfg.DMPolicy); p != "" {
		return channels.DMPolicy(p)
	}
	return channels.DMPolicyPairing
}

func (c *Channel) groupPolicy() channels.GroupPolicy {
	if p := strings.TrimSpace(c.cfg.GroupPolicy); p != "" {
		return channels.GroupPolicy(p)
	}
	return channels.GroupPolicyOpen
}

func (c *Channel) transport() string {
	if c.cfg.Transport == "ws" {
		return "ws"
	}
	return "sse"
}
