package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ridehail/internal/domain"
)

func TestBitcoin_SumsOutputsToAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rawtx/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"confirmations":4,"out":[{"addr":"bc1dest","value":150000},{"addr":"bc1change","value":99},{"addr":"bc1dest","value":50000}]}`))
	}))
	defer srv.Close()

	btc := NewBitcoin(srv.URL, time.Second)
	v, err := btc.Verify(context.Background(), "abc", 0.002, "bc1dest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Confirmed(3) || v.Amount != 0.002 {
		t.Errorf("unexpected verification %+v", v)
	}
	if v.Confirmed(5) {
		t.Error("4 confirmations should not satisfy 5")
	}

	v, err = btc.Verify(context.Background(), "missing", 1, "bc1dest")
	if err != nil || v.Found {
		t.Errorf("expected not found without error, got %+v %v", v, err)
	}
}

func TestEVM_ComputesConfirmations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "eth_getTransactionByHash":
			_, _ = w.Write([]byte(`{"result":{"to":"0xDEST","value":"0xde0b6b3a7640000"}}`))
		case "eth_getTransactionReceipt":
			_, _ = w.Write([]byte(`{"result":{"status":"0x1","blockNumber":"0x10"}}`))
		case "eth_blockNumber":
			_, _ = w.Write([]byte(`{"result":"0x12"}`))
		}
	}))
	defer srv.Close()

	v, err := NewEVM(srv.URL, time.Second).Verify(context.Background(), "0xabc", 1, "0xdest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Confirmations != 3 || v.Amount != 1 || !v.Succeeded {
		t.Errorf("unexpected verification %+v", v)
	}
}

func TestTron_MatchesTransferEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"event_name":"Transfer","result":{"to":"TDEST","value":"2500000"}}]}`))
	}))
	defer srv.Close()

	v, err := NewTron(srv.URL, 6, 20, time.Second).Verify(context.Background(), "h", 2.5, "tdest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Confirmed(3) || v.Amount != 2.5 {
		t.Errorf("unexpected verification %+v", v)
	}
}

func TestPriceFeed_AndConvert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids") != "tether" {
			t.Errorf("unexpected ids %s", r.URL.Query().Get("ids"))
		}
		_, _ = w.Write([]byte(`{"tether":{"ngn":1600}}`))
	}))
	defer srv.Close()

	price, err := NewPriceFeed(srv.URL, time.Second).Price(context.Background(), domain.AssetUSDT, "NGN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Convert(2400, price); got != 1.5 {
		t.Errorf("expected 1.5 USDT, got %v", got)
	}
}
