package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polymirror/internal/domain"
	"github.com/alanyoungcy/polymirror/internal/platform/polymarket"
)

type staticSigner struct {
	calls []string
}

func (s *staticSigner) Sign(method, path, body string) (map[string]string, error) {
	s.calls = append(s.calls, method+" "+path)
	return map[string]string{"POLY_SIGNATURE": "sig", "POLY_API_KEY": "key"}, nil
}

func marketOrder() domain.OrderRequest {
	return domain.OrderRequest{
		Market:         "0xmarket",
		Asset:          "token-yes",
		Side:           domain.SideBuy,
		Size:           decimal.RequireFromString("25"),
		Type:           domain.OrderTypeMarket,
		IdempotencyKey: "key-1",
	}
}

func TestPostOrder_SendsIOCMarketBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "sig", r.Header.Get("POLY_SIGNATURE"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderID":"ord-1","success":true,"status":"matched","avgPrice":"0.41"}`))
	}))
	defer srv.Close()

	signer := &staticSigner{}
	client := polymarket.NewClobClient(srv.URL, signer, 0)

	res, err := client.PostOrder(context.Background(), marketOrder())
	require.NoError(t, err)

	assert.Equal(t, "ord-1", res.OrderID)
	assert.True(t, res.AvgPrice.Equal(decimal.RequireFromString("0.41")))
	assert.Equal(t, "MARKET", got["type"])
	assert.Equal(t, "IOC", got["timeInForce"])
	assert.Equal(t, "BUY", got["side"])
	assert.Equal(t, "25", got["size"])
	assert.Equal(t, "key-1", got["clientOrderId"])
	_, hasPrice := got["price"]
	assert.False(t, hasPrice)
	assert.Equal(t, []string{"POST /order"}, signer.calls)
}

func TestPostOrder_LimitCarriesPrice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"orderId":"ord-2"}`))
	}))
	defer srv.Close()

	req := marketOrder()
	req.Type = domain.OrderTypeLimit
	req.Price = decimal.RequireFromString("0.4")

	res, err := polymarket.NewClobClient(srv.URL, nil, 0).PostOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ord-2", res.OrderID)
	assert.Equal(t, "LIMIT", got["type"])
	assert.Equal(t, "0.4", got["price"])
}

func TestPostOrder_4xxIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"size below minimum"}`))
	}))
	defer srv.Close()

	_, err := polymarket.NewClobClient(srv.URL, nil, 0).PostOrder(context.Background(), marketOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.NotErrorIs(t, err, domain.ErrNetwork)
	assert.Contains(t, err.Error(), "size below minimum")
}

func TestPostOrder_5xxIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := polymarket.NewClobClient(srv.URL, nil, 0).PostOrder(context.Background(), marketOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.NotErrorIs(t, err, domain.ErrOrderRejected)
}

func TestPostOrder_DeclinedWith200IsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"errorMsg":"not enough balance"}`))
	}))
	defer srv.Close()

	_, err := polymarket.NewClobClient(srv.URL, nil, 0).PostOrder(context.Background(), marketOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestPostOrder_UnreachableIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := polymarket.NewClobClient(url, nil, 0).PostOrder(context.Background(), marketOrder())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestCancelOrder_UsesDeletePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/order/ord-9", r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	signer := &staticSigner{}
	require.NoError(t, polymarket.NewClobClient(srv.URL, signer, 0).CancelOrder(context.Background(), "ord-9"))
	assert.Equal(t, []string{"DELETE /order/ord-9"}, signer.calls)
}
