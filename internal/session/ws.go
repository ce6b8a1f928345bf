package session

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketDialer dials a relay at base, for example
// ws://host:port/sync. The document ID is added as the doc query
// parameter at dial time.
func WebSocketDialer(base string) Dialer {
	return DialerFunc(func(ctx context.Context, docID string) (Conn, error) {
		endpoint, err := SyncURL(base, docID)
		if err != nil {
			return nil, err
		}
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		return &wsConn{conn: conn}, nil
	})
}

// SyncURL sets the doc query parameter on a relay base URL.
func SyncURL(base, docID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("doc", docID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// wsConn adapts a gorilla connection to Conn. The mutex serializes
// writers; gorilla permits at most one. Receive relies on Close to
// unblock, per the Conn contract.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
