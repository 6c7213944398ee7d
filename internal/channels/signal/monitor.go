package signal

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const readyPollInterval = time.Second

// defaultBackoff returns a randomized reconnect delay: 1s base plus up to 3s
// of jitter, so a fleet of monitors does not hammer a recovering daemon in
// lockstep.
func defaultBackoff(int) time.Duration {
	return time.Second + time.Duration(rand.Int63n(int64(3*time.Second)))
}

// waitDaemonReady polls the daemon's version RPC until it responds or the
// readiness timeout elapses. Timeout is fatal: the monitor must not start
// against a daemon that never comes up.
func (c *Channel) waitDaemonReady(ctx context.Context) error {
	deadline := time.Now().Add(c.readyTimeout)
	var lastErr error
	for {
		err := c.rpcVersion(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("signal daemon not reachable at %s: %w", c.cfg.HTTPURL, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

// streamLoop keeps the event subscription alive: consume until failure,
// wait a randomized backoff, reconnect. Cancellation is observed before
// every reconnect attempt and inside the backoff wait, and is never
// reported as an error.
func (c *Channel) streamLoop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.consumeStream(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := c.backoff(attempt)
		slog.Warn("signal event stream dropped, will reconnect", "error", err, "backoff", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Channel) consumeStream(ctx context.Context) error {
	if c.transport() == "ws" {
		return c.consumeWS(ctx)
	}
	return c.consumeSSE(ctx)
}

// consumeSSE subscribes to the daemon's SSE endpoint and dispatches each
// "receive" event. Returns when the stream breaks or ctx is cancelled.
func (c *Channel) consumeSSE(ctx context.Context) error {
	url := strings.TrimRight(c.cfg.HTTPURL, "/") + "/api/v1/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamc.Do(req)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	slog.Info("signal event stream connected", "url", url)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line terminates one SSE event.
			if event == "receive" && data != "" {
				c.dispatchFrame(ctx, []byte(data))
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("event stream read: %w", err)
	}
	return fmt.Errorf("event stream closed by daemon")
}

// consumeWS subscribes over the daemon's receive WebSocket. Each text frame
// is one envelope-bearing JSON payload.
func (c *Channel) consumeWS(ctx context.Context) error {
	url := strings.TrimRight(c.cfg.HTTPURL, "/") + "/v1/receive/" + c.cfg.Account
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial receive websocket: %w", err)
	}
	defer conn.Close()

	slog.Info("signal receive websocket connected", "url", url)

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("receive websocket read: %w", err)
		}
		c.dispatchFrame(ctx, payload)
	}
}

// dispatchFrame hands one raw frame to the pipeline. Dispatch is
// fire-and-forget in arrival order; handling may overlap with later frames,
// and a handler failure never propagates to the stream loop.
func (c *Channel) dispatchFrame(ctx context.Context, data []byte) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		fctx, span := c.tracer.Start(ctx, "signal.frame")
		defer span.End()

		rcv, err := decodeReceive(data)
		if err != nil {
			// A malformed frame is discarded; the stream continues.
			slog.Warn("invalid signal event frame", "error", err)
			return
		}
		if rcv.Envelope != nil {
			span.SetAttributes(
				attribute.Int64("signal.timestamp", rcv.Envelope.Timestamp),
				attribute.Bool("signal.reaction", rcv.Envelope.DataMessage != nil && rcv.Envelope.DataMessage.Reaction != nil),
			)
		}
		c.handleReceive(fctx, rcv)
	}()
}
