package live

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const maxServerMessage = 8 << 20

// Conn is an open streaming connection to the conversational endpoint.
// Receive returns io.EOF once the endpoint closes the session normally.
type Conn interface {
	Send(ctx context.Context, msg ClientMessage) error
	Receive(ctx context.Context) (ServerMessage, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// WebsocketDialer connects to a BidiGenerateContent style websocket endpoint
type WebsocketDialer struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxServerMessage)

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, msg ClientMessage) error {
	return wsjson.Write(ctx, c.conn, msg)
}

// Receive accepts both text and binary frames, the endpoint uses either
func (c *wsConn) Receive(ctx context.Context) (ServerMessage, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return ServerMessage{}, io.EOF
		}
		return ServerMessage{}, err
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("failed to decode server message: %w", err)
	}
	return msg, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
