package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/types"
)

// Client feeds a Session from the server's /ws endpoint.
type Client struct {
	conn    *websocket.Conn
	session *Session
	log     *zap.Logger
}

// Dial opens the socket for session's room. baseURL is the server's ws or
// wss root, e.g. ws://localhost:8080.
func Dial(ctx context.Context, baseURL, participantID string, session *Session, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	q := url.Values{}
	q.Set("room", session.roomID)
	q.Set("participant", participantID)
	endpoint := strings.TrimRight(baseURL, "/") + "/ws?" + q.Encode()

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return &Client{conn: conn, session: session, log: log.Named("replica")}, nil
}

// Run reads frames until the socket closes, the room is deleted or ctx is
// done. The session is left Disconnected on return.
func (c *Client) Run(ctx context.Context) error {
	defer c.session.Disconnect()
	defer c.conn.CloseNow()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("bad frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case types.MsgStateSnapshot:
			if msg.State != nil {
				c.session.Install(*msg.State)
			}
		case types.MsgChange:
			if msg.Notification == nil {
				continue
			}
			err := c.session.Apply(ctx, *msg.Notification)
			if errors.Is(err, ErrRoomDeleted) {
				return nil
			}
			if err != nil {
				// Ask the server for a fresh snapshot over the socket instead.
				c.log.Warn("resync failed", zap.Error(err))
				if err := c.Send(ctx, types.ClientMessage{Type: types.MsgResync}); err != nil {
					return err
				}
			}
		case types.MsgError:
			c.log.Info("command rejected", zap.String("code", msg.Code), zap.String("error", msg.Error))
		}
	}
}

// Send issues a command. Its effect arrives later as a Change frame.
func (c *Client) Send(ctx context.Context, cm types.ClientMessage) error {
	payload, err := json.Marshal(cm)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
