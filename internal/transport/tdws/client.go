// Package tdws talks TDLib JSON to a tdjson gateway over a WebSocket.
package tdws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/tgsessions/internal/tdlib"
	"github.com/vovakirdan/tgsessions/internal/utils"
)

// ErrClosed is returned for requests sent after, or outstanding when, the connection ended.
var ErrClosed = errors.New("gateway connection closed")

const updatesBuffer = 1024

type response struct {
	data json.RawMessage
	err  error
}

// Client multiplexes any number of TDLib clients over one gateway connection.
type Client struct {
	conn   *websocket.Conn
	logger *zerolog.Logger

	lastID      atomic.Int32
	updates     chan tdlib.Envelope
	discard     chan struct{}
	discardOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan response
	closed  bool
}

// Dial connects to the gateway. maxBytes limits the size of one inbound object; zero keeps
// the library default.
func Dial(ctx context.Context, url string, maxBytes int64, logger *zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	if maxBytes > 0 {
		conn.SetReadLimit(maxBytes)
	}
	return newClient(conn, logger), nil
}

func newClient(conn *websocket.Conn, logger *zerolog.Logger) *Client {
	return &Client{
		conn:    conn,
		logger:  logger,
		updates: make(chan tdlib.Envelope, updatesBuffer),
		discard: make(chan struct{}),
		pending: make(map[string]chan response),
	}
}

// Run reads the connection until it fails or ctx is done. Outstanding requests then fail
// with ErrClosed and the update channel is closed.
func (c *Client) Run(ctx context.Context) error {
	err := c.readLoop(ctx)
	c.shutdown()

	if ctx.Err() != nil {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, c.conn, &raw); err != nil {
			return fmt.Errorf("read gateway: %w", err)
		}
		if err := c.dispatch(ctx, raw); err != nil {
			return err
		}
	}
}

func (c *Client) dispatch(ctx context.Context, raw json.RawMessage) error {
	var head tdlib.Header
	if err := json.Unmarshal(raw, &head); err != nil {
		c.logger.Warn().Err(err).Msg("malformed gateway object")
		return nil
	}

	if head.Extra != "" {
		c.mu.Lock()
		ch, ok := c.pending[head.Extra]
		delete(c.pending, head.Extra)
		c.mu.Unlock()
		if ok {
			ch <- toResponse(head, raw)
			return nil
		}
	}

	if !head.IsUpdate() {
		c.logger.Debug().Str("type", head.Type).Int32("client_id", head.ClientID).Msg("unsolicited gateway object")
		return nil
	}

	update, err := tdlib.DecodeUpdate(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("type", head.Type).Int32("client_id", head.ClientID).Msg("undecodable update")
		return nil
	}
	select {
	case <-c.discard:
		return nil
	default:
	}
	select {
	case c.updates <- tdlib.Envelope{ClientID: head.ClientID, Update: update}:
		return nil
	case <-c.discard:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toResponse(head tdlib.Header, raw json.RawMessage) response {
	if head.Type != "error" {
		return response{data: raw}
	}
	var tdErr tdlib.Error
	if err := json.Unmarshal(raw, &tdErr); err != nil {
		return response{err: fmt.Errorf("decode error object: %w", err)}
	}
	return response{err: &tdErr}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for extra, ch := range c.pending {
		ch <- response{err: ErrClosed}
		delete(c.pending, extra)
	}
	close(c.updates)
}

// Disconnect closes the gateway connection. Run returns shortly after.
func (c *Client) Disconnect() error {
	return c.conn.Close(websocket.StatusNormalClosure, "shutting down")
}

// DiscardUpdates makes the client drop inbound updates instead of delivering them. Responses
// keep flowing after the reader of Updates is gone.
func (c *Client) DiscardUpdates() {
	c.discardOnce.Do(func() { close(c.discard) })
}

// Updates delivers inbound updates of all clients in arrival order.
func (c *Client) Updates() <-chan tdlib.Envelope {
	return c.updates
}

// CreateClient allocates a new client handle. The gateway creates the client on its first
// request.
func (c *Client) CreateClient() int32 {
	return c.lastID.Add(1)
}

// Send issues a request of the given type on behalf of client id and waits for its response.
func (c *Client) Send(ctx context.Context, id int32, method string, fields map[string]any) (json.RawMessage, error) {
	extra := utils.NewRequestID()
	msg := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		msg[k] = v
	}
	msg["@type"] = method
	msg["@extra"] = extra
	msg["@client_id"] = id

	ch := make(chan response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[extra] = ch
	c.mu.Unlock()

	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		c.forget(extra)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		return resp.data, resp.err
	case <-ctx.Done():
		c.forget(extra)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(extra string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, extra)
}

func (c *Client) call(ctx context.Context, id int32, method string, fields map[string]any) error {
	_, err := c.Send(ctx, id, method, fields)
	return err
}
