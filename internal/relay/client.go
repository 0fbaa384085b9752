package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/sstrand/matchpoint/internal/syncproto"
)

// Client is the watch-side relay endpoint. It never writes events; it
// issues commands through the pending-action session and mirrors
// whatever snapshot the phone last delivered.
type Client struct {
	baseURL string
	session *syncproto.Session
	http    *http.Client

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a watch-side client for the phone at baseURL
// (e.g. "http://10.0.0.4:7345"). Session options tune the
// pending-action behavior.
func NewClient(baseURL string, opts ...syncproto.SessionOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: syncproto.NewSession(false, opts...),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Session exposes the protocol session (cached snapshot, pending
// action) for the UI layer.
func (c *Client) Session() *syncproto.Session { return c.session }

// Connect establishes the sync channel: seeds the cache from the
// durable context slot, dials the websocket, asks for a fresh snapshot,
// and starts the read loop. The read loop runs until ctx is cancelled
// or the connection drops.
func (c *Client) Connect(ctx context.Context) error {
	// Durable context first: even if the live channel fails right
	// after, the watch shows the last known state.
	c.seedFromDurableContext(ctx)

	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// A newly (re)connected device asks for an immediate full snapshot
	// instead of waiting for the next mutation.
	if err := c.writeCommand(ctx, syncproto.CmdRequestSync); err != nil {
		slog.Warn("requestSync send failed", "error", err)
	}

	go c.readLoop(ctx, conn)
	return nil
}

// Close tears the live channel down. The cached snapshot survives.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// SendCommand issues a remote command with optimistic local feedback.
// Returns syncproto.ErrActionInFlight while a prior action awaits
// confirmation. Delivery itself is fire-and-forget: a failed send is
// logged, not retried - the pending-action timeout and the next
// snapshot reconcile the UI.
func (c *Client) SendCommand(ctx context.Context, cmd syncproto.Command) error {
	if action, ok := cmd.Action(); ok {
		if err := c.session.Begin(action); err != nil {
			return err
		}
	}

	if err := c.writeCommand(ctx, cmd); err != nil {
		slog.Warn("command send failed", "command", string(cmd), "error", err)
	}
	return nil
}

func (c *Client) writeCommand(ctx context.Context, cmd syncproto.Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := syncproto.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			slog.Info("sync channel closed", "error", err)
			c.Close()
			return
		}
		c.apply(data)
	}
}

// apply folds one inbound payload into the session. Malformed payloads
// are discarded whole; the prior cached state is retained.
func (c *Client) apply(data []byte) {
	msg, err := syncproto.Decode(data)
	if err != nil {
		slog.Warn("discarding inbound payload", "error", err)
		return
	}

	switch msg.Kind {
	case syncproto.KindSnapshot:
		c.session.ObserveSnapshot(*msg.Snapshot)
	case syncproto.KindConfirmation:
		c.session.ObserveConfirmation(msg.HighlightCount)
	case syncproto.KindCommand:
		// The phone doesn't send commands; ignore.
		slog.Warn("ignoring command from authoritative peer", "command", string(msg.Command))
	}
}

// seedFromDurableContext reads the phone's last-write-wins context slot
// so a reconnecting watch has state before the live channel delivers.
func (c *Client) seedFromDurableContext(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/context", nil)
	if err != nil {
		return
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Info("durable context unavailable", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("durable context read failed", "error", err)
		return
	}
	c.apply(data)
}
