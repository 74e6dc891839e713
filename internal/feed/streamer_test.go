package feed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/feed"
	"github.com/alanyoungcy/polymirror/internal/platform/polymarket"
)

const leadAddr = "0xAbC0000000000000000000000000000000000001"

func mockUserChannel(t *testing.T, frames []string) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/user", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub polymarket.StreamSubscribe
		assert.NoError(t, json.Unmarshal(msg, &sub))
		assert.Equal(t, "subscribe", sub.Type)
		assert.Equal(t, "user", sub.Channel)
		assert.Equal(t, []string{"*"}, sub.Markets)

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamer_FiltersToLead(t *testing.T) {
	srv := mockUserChannel(t, []string{
		"PONG",
		`{"event":"ORDER_FILLED","address":"0xsomeoneelse","market":"0xm","side":"BUY","price":0.5,"id":"o-0"}`,
		`{"event":"ORDER_FILLED","address":"` + leadAddr + `","market":"0xm","side":"BUY","price":0,"id":"o-1"}`,
		`{"event":"ORDER_FILLED","address":"` + strings.ToLower(leadAddr) + `","market_id":"0xm","side":"BUY","fill_price":"0.42","fill_size":"10","transactionHash":"0xtx","timestamp":1700000000}`,
	})
	defer srv.Close()

	sup := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 3, Delay: 10 * time.Millisecond}, quietLogger())
	s := feed.NewStreamer(polymarket.NewUserStream(wsURL(srv), "user", nil), sup, leadAddr, quietLogger())

	out := make(chan domain.TradeEvent, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()

	select {
	case ev := <-out:
		assert.Equal(t, "0xtx-1700000000", ev.Identity)
		assert.Equal(t, "0xm", ev.Market)
		assert.Equal(t, "stream", ev.Source)
		assert.Equal(t, "0.42", ev.Price.String())
	case <-time.After(3 * time.Second):
		t.Fatal("lead frame not delivered")
	}
	assert.Equal(t, feed.StateConnected, s.State())

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, out)
}

func TestStreamer_ExhaustsWhenServerRefuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sup := feed.NewSupervisor(feed.SupervisorConfig{MaxAttempts: 2, Delay: time.Millisecond}, quietLogger())
	s := feed.NewStreamer(polymarket.NewUserStream(wsURL(srv), "user", nil), sup, leadAddr, quietLogger())

	err := s.Run(context.Background(), make(chan domain.TradeEvent, 1))
	require.ErrorIs(t, err, domain.ErrReconnectExhausted)
	assert.Equal(t, feed.StateExhausted, s.State())
}
