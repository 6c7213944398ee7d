package signal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/sigclaw/internal/bus"
	"github.com/nextlevelbuilder/sigclaw/internal/config"
	"github.com/nextlevelbuilder/sigclaw/internal/store"
)

// fakePairing is an in-memory PairingStore recording upserts.
type fakePairing struct {
	mu      sync.Mutex
	pending map[string]store.PairingRequest
	upserts int
}

func newFakePairing() *fakePairing {
	return &fakePairing{pending: make(map[string]store.PairingRequest)}
}

func (f *fakePairing) Upsert(_ context.Context, provider, id string, _ store.PairingMeta) (store.PairingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if req, ok := f.pending[id]; ok {
		req.Created = false
		return req, nil
	}
	req := store.PairingRequest{Provider: provider, ID: id, Code: "ABCD1234", Created: true, CreatedAt: time.Now()}
	f.pending[id] = req
	return req, nil
}

func (f *fakePairing) List(context.Context, string) ([]store.PairingRequest, error) { return nil, nil }
func (f *fakePairing) Approve(context.Context, string, string) (string, error)     { return "", nil }
func (f *fakePairing) Delete(context.Context, string, string) error                { return nil }

// fakeAllowlist serves a fixed entry set.
type fakeAllowlist struct{ entries []string }

func (f *fakeAllowlist) Read(context.Context, string) ([]string, error) { return f.entries, nil }
func (f *fakeAllowlist) Add(context.Context, string, string) error      { return nil }
func (f *fakeAllowlist) Remove(context.Context, string, string) error   { return nil }

// fakeQueue is an in-memory NotificationQueue with the same (session, context)
// dedup contract as the sqlite queue.
type fakeQueue struct {
	mu      sync.Mutex
	seen    map[string]bool
	entries []store.Notification
}

func newFakeQueue() *fakeQueue { return &fakeQueue{seen: make(map[string]bool)} }

func (f *fakeQueue) Enqueue(_ context.Context, body string, opts store.NotificationOptions) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := opts.SessionKey + "\x00" + opts.ContextKey
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	f.entries = append(f.entries, store.Notification{SessionKey: opts.SessionKey, ContextKey: opts.ContextKey, Body: body})
	return true, nil
}

func (f *fakeQueue) Drain(context.Context, string) ([]store.Notification, error) { return nil, nil }
func (f *fakeQueue) Close() error                                                { return nil }

func (f *fakeQueue) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// rpcServer fakes the daemon's JSON-RPC endpoint and records send calls.
type rpcServer struct {
	*httptest.Server
	mu    sync.Mutex
	sends []map[string]any
}

func newRPCServer(t *testing.T) *rpcServer {
	t.Helper()
	rs := &rpcServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		json.Unmarshal(body, &req)
		if req.Method == "send" {
			rs.mu.Lock()
			rs.sends = append(rs.sends, req.Params)
			rs.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","result":{},"id":"1"}`))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *rpcServer) sendCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.sends)
}

type testEnv struct {
	ch      *Channel
	bus     *bus.MessageBus
	pairing *fakePairing
	queue   *fakeQueue
	rpc     *rpcServer
}

func newTestChannel(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	rpc := newRPCServer(t)

	cfg := config.Default()
	cfg.Signal.Enabled = true
	cfg.Signal.Account = "+15550001111"
	cfg.Signal.HTTPURL = rpc.URL
	if mutate != nil {
		mutate(cfg)
	}

	pairing := newFakePairing()
	queue := newFakeQueue()
	msgBus := bus.NewMessageBus()
	stores := &store.Stores{
		Pairing:       pairing,
		Allowlist:     &fakeAllowlist{},
		Notifications: queue,
	}

	ch, err := New(cfg, msgBus, stores)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{ch: ch, bus: msgBus, pairing: pairing, queue: queue, rpc: rpc}
}

// tryConsume waits briefly for one inbound message.
func tryConsume(t *testing.T, b *bus.MessageBus) (bus.InboundMessage, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return b.ConsumeInbound(ctx)
}

func TestHandleReceiveSelfMessageDropped(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) { c.Signal.DMPolicy = "open" })

	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+1 (555) 000-1111", // the bot's own account, formatted differently
		Timestamp:    1,
		DataMessage:  &DataMessage{Message: "echo"},
	}})

	if _, ok := tryConsume(t, env.bus); ok {
		t.Error("self message reached the inbound bus")
	}
}

func TestHandleReceiveSyncEchoIgnored(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) { c.Signal.DMPolicy = "open" })

	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		SyncMessage:  &SyncMessage{SentMessage: &SentMessage{Message: "mirrored"}},
	}})

	if _, ok := tryConsume(t, env.bus); ok {
		t.Error("sync echo reached the inbound bus")
	}
}

func TestHandleReceiveDualFacetFrame(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) {
		c.Signal.DMPolicy = "open"
		c.Signal.ReactionNotifications = "own"
	})

	// One frame carrying both a reaction to the bot's message and text.
	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		Timestamp:    99,
		DataMessage: &DataMessage{
			Message: "nice one",
			Reaction: &Reaction{
				Emoji:               "👍",
				TargetAuthorNumber:  "+15550001111",
				TargetSentTimestamp: 42,
			},
		},
	}})

	if env.queue.count() != 1 {
		t.Errorf("reaction facet: %d notifications, want 1", env.queue.count())
	}
	msg, ok := tryConsume(t, env.bus)
	if !ok {
		t.Fatal("conversational facet did not publish")
	}
	if msg.Content != "nice one" || msg.SenderID != "+15550002222" {
		t.Errorf("inbound = %+v", msg)
	}
}

func TestHandleReceiveReactionOnlyFrame(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) {
		c.Signal.DMPolicy = "open"
		c.Signal.ReactionNotifications = "own"
	})

	frame := &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		DataMessage: &DataMessage{
			Reaction: &Reaction{
				Emoji:               "🔥",
				TargetAuthorNumber:  "+15550001111",
				TargetSentTimestamp: 42,
			},
		},
	}}

	env.ch.handleReceive(context.Background(), frame)
	if env.queue.count() != 1 {
		t.Fatalf("%d notifications, want 1", env.queue.count())
	}
	if _, ok := tryConsume(t, env.bus); ok {
		t.Error("reaction-only frame published an inbound message")
	}

	// Redelivery of the same provider event is suppressed by the queue.
	env.ch.handleReceive(context.Background(), frame)
	if env.queue.count() != 1 {
		t.Errorf("duplicate reaction enqueued: %d notifications", env.queue.count())
	}
}

func TestIssuePairingIdempotent(t *testing.T) {
	env := newTestChannel(t, nil) // dm_policy defaults to pairing

	frame := &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		DataMessage:  &DataMessage{Message: "hello"},
	}}

	env.ch.handleReceive(context.Background(), frame)
	if _, ok := tryConsume(t, env.bus); ok {
		t.Error("unpaired sender reached the inbound bus")
	}
	if env.rpc.sendCount() != 1 {
		t.Fatalf("%d pairing replies sent, want 1", env.rpc.sendCount())
	}

	// Second message while the request is still pending: no re-send.
	env.ch.handleReceive(context.Background(), frame)
	if env.rpc.sendCount() != 1 {
		t.Errorf("pending pairing re-sent the code: %d sends", env.rpc.sendCount())
	}
	if env.pairing.upserts != 2 {
		t.Errorf("upserts = %d, want 2", env.pairing.upserts)
	}
}

func TestAllowlistedSenderUnderPairingPolicy(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) {
		c.Signal.AllowFrom = []string{"+1 (555) 000-2222"}
	})

	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		DataMessage:  &DataMessage{Message: "hello"},
	}})

	msg, ok := tryConsume(t, env.bus)
	if !ok {
		t.Fatal("allow-listed sender was not admitted")
	}
	if !msg.Authorized {
		t.Error("DM inbound should be authorized")
	}
	if env.rpc.sendCount() != 0 {
		t.Error("allow-listed sender received a pairing code")
	}
}

func TestGroupRequireMention(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) {
		c.Signal.RequireMention = true
	})
	group := &GroupInfo{GroupID: "grp1", GroupName: "Team"}

	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		DataMessage:  &DataMessage{Message: "no mention", GroupInfo: group},
	}})
	if _, ok := tryConsume(t, env.bus); ok {
		t.Error("unmentioned group message was admitted")
	}

	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		DataMessage: &DataMessage{
			Message:   "with mention",
			GroupInfo: group,
			Mentions:  []Mention{{Number: "+15550001111"}},
		},
	}})
	msg, ok := tryConsume(t, env.bus)
	if !ok {
		t.Fatal("mentioned group message was dropped")
	}
	if msg.ChatID != "grp1" || msg.Metadata["group_name"] != "Team" {
		t.Errorf("group routing = %+v", msg)
	}
}

func TestEditMessageCarriesTargetTimestamp(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) { c.Signal.DMPolicy = "open" })

	env.ch.handleReceive(context.Background(), &Receive{Envelope: &Envelope{
		SourceNumber: "+15550002222",
		Timestamp:    100,
		EditMessage: &EditMessage{
			TargetSentTimestamp: 42,
			DataMessage:         &DataMessage{Message: "fixed typo"},
		},
	}})

	msg, ok := tryConsume(t, env.bus)
	if !ok {
		t.Fatal("edit was dropped")
	}
	if msg.Content != "fixed typo" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.Metadata["edit_target_timestamp"] != "42" {
		t.Errorf("edit metadata = %v", msg.Metadata)
	}
}

func TestExceptionFrameStillProcessed(t *testing.T) {
	env := newTestChannel(t, func(c *config.Config) { c.Signal.DMPolicy = "open" })

	env.ch.handleReceive(context.Background(), &Receive{
		Exception: &ReceiveError{Message: "untrusted identity"},
		Envelope: &Envelope{
			SourceNumber: "+15550002222",
			DataMessage:  &DataMessage{Message: "still here"},
		},
	})

	if _, ok := tryConsume(t, env.bus); !ok {
		t.Error("frame with daemon exception was dropped")
	}
}
