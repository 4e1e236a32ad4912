package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

var backendLogger = log.With().Str("logger_name", "backend::conn").Logger()

// Conn is a persistent, ordered, message-framed duplex channel to the
// game-rule backend. Frames are opaque bytes; higher layers interpret
// them as JSON.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close(reason string) error
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	err := c.ws.Write(ctx, websocket.MessageText, frame)
	if err != nil {
		return errors.Wrap(err, "Unable to write frame to backend")
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read frame from backend")
	}
	return data, nil
}

func (c *wsConn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}

// Dialer opens backend connections, polling with a fixed delay until
// the backend accepts the dial or the context is done.
type Dialer struct {
	URL       string
	PollDelay time.Duration
}

func (d *Dialer) Dial(ctx context.Context) (Conn, error) {
	pollDelay := d.PollDelay
	if pollDelay == 0 {
		pollDelay = 500 * time.Millisecond
	}
	for {
		ws, _, err := websocket.Dial(ctx, d.URL, nil)
		if err == nil {
			return &wsConn{ws: ws}, nil
		}
		backendLogger.Error().Msgf("Failed to connect to backend %s: %v. Retrying.", d.URL, err)
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "Gave up connecting to backend %s", d.URL)
		case <-time.After(pollDelay):
		}
	}
}
