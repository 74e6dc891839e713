package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polymirror/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// FrameHandler receives every text frame read from the stream.
type FrameHandler func(raw []byte)

// UserStream is a WebSocket client for the Polymarket user channel. Each call
// to Session owns one connection; reconnection policy belongs to the caller.
type UserStream struct {
	wsURL   string
	channel string
	auth    *StreamAuth
	dialer  websocket.Dialer
}

// NewUserStream creates a stream client.
//
// wsHost is the WebSocket root, e.g. "wss://ws-subscriptions-clob.polymarket.com";
// the channel path is appended unless wsHost already ends with it.
func NewUserStream(wsHost, channel string, auth *StreamAuth) *UserStream {
	u := strings.TrimRight(wsHost, "/")
	if channel != "" && !strings.HasSuffix(u, "/ws/"+channel) {
		u += "/ws/" + channel
	}
	return &UserStream{
		wsURL:   u,
		channel: channel,
		auth:    auth,
		dialer:  websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// URL returns the resolved endpoint.
func (s *UserStream) URL() string {
	return s.wsURL
}

// Session dials, subscribes, calls connected once the subscription is sent,
// and then feeds every frame to onFrame until the connection fails or ctx is
// done. It always returns a non-nil error; ctx.Err() on shutdown.
func (s *UserStream) Session(ctx context.Context, connected func(), onFrame FrameHandler) error {
	conn, _, err := s.dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(msgType, data)
	}

	sub, err := json.Marshal(StreamSubscribe{
		Type:    "subscribe",
		Channel: s.channel,
		Auth:    s.auth,
		Markets: []string{"*"},
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	if err := write(websocket.TextMessage, sub); err != nil {
		conn.Close()
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	// Set up pong handler for keep-alive.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if connected != nil {
		connected()
	}

	done := make(chan struct{})
	defer close(done)

	go s.pingLoop(done, write)

	// Closing the connection unblocks ReadMessage on shutdown.
	go func() {
		select {
		case <-ctx.Done():
			_ = write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polymarket/ws: %w: %w", domain.ErrWSDisconnect, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onFrame(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (s *UserStream) pingLoop(done <-chan struct{}, write func(int, []byte) error) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
