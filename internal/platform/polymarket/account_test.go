package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/platform/polymarket"
)

func TestAccountReader_FetchAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xme", r.URL.Query().Get("address"))
		switch r.URL.Path {
		case "/balance":
			w.Write([]byte(`{"balance":"512.25"}`))
		case "/positions":
			w.Write([]byte(`[
				{"conditionId":"0xa","size":"25","avgPrice":0.4,"side":"BUY"},
				{"conditionId":"0xb","size":"0","avgPrice":0.3},
				{"conditionId":"","size":"3","avgPrice":0.3}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reader := polymarket.NewAccountReader(polymarket.NewDataClient(srv.URL, 100, 10, 0), "0xme")
	state, err := reader.FetchAccount(context.Background())
	require.NoError(t, err)

	assert.True(t, state.Balance.Equal(decimal.RequireFromString("512.25")))
	require.Len(t, state.Positions, 1)
	pos := state.Positions["0xa"]
	assert.Equal(t, domain.SideBuy, pos.Side)
	assert.True(t, pos.EntryPrice.Equal(decimal.RequireFromString("0.4")))
	assert.False(t, state.FetchedAt.IsZero())
}

func TestAccountReader_FailsWholeSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/positions" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"balance":"1"}`))
	}))
	defer srv.Close()

	reader := polymarket.NewAccountReader(polymarket.NewDataClient(srv.URL, 100, 10, 0), "0xme")
	_, err := reader.FetchAccount(context.Background())
	assert.ErrorIs(t, err, domain.ErrNetwork)
}
