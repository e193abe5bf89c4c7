package blockradar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		EscrowAccountID: "escrow-master",
		EscrowAddress:   "0xESCROW",
	})
	return client, srv
}

func TestEscrowDepositSendsIdempotentTransfer(t *testing.T) {
	var gotPath, gotKey, gotAPIKey string
	var gotBody transferRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAPIKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"data":{"id":"tx-001","status":"success"}}`))
	})

	txID, err := client.EscrowDeposit(context.Background(), "acct-seller",
		decimal.RequireFromString("2.002"), "CNGN", "P2P-ESCROW-INIT-P2P-ABC")
	if err != nil {
		t.Fatalf("EscrowDeposit: %v", err)
	}
	if txID != "tx-001" {
		t.Fatalf("tx id = %q, want tx-001", txID)
	}
	if gotPath != "/wallets/escrow-master/addresses/acct-seller/withdraw" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "P2P-ESCROW-INIT-P2P-ABC" {
		t.Fatalf("idempotency key = %q", gotKey)
	}
	if gotAPIKey != "test-key" {
		t.Fatalf("api key header = %q", gotAPIKey)
	}
	if gotBody.Address != "0xESCROW" || gotBody.Amount != "2.002" || gotBody.Currency != "CNGN" {
		t.Fatalf("unexpected transfer body: %+v", gotBody)
	}
	if gotBody.RequestID != gotBody.Reference {
		t.Fatalf("request id %q should match reference %q", gotBody.RequestID, gotBody.Reference)
	}
}

func TestReleaseFromEscrowTargetsRecipientAddress(t *testing.T) {
	var gotPath string
	var gotBody transferRequest

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"data":{"id":"tx-rel","status":"success"}}`))
	})

	txID, err := client.ReleaseFromEscrow(context.Background(), "acct-buyer",
		decimal.RequireFromString("2"), "CNGN", "0xBUYER", "P2P-REL-FINAL-P2P-ABC")
	if err != nil {
		t.Fatalf("ReleaseFromEscrow: %v", err)
	}
	if txID != "tx-rel" {
		t.Fatalf("tx id = %q", txID)
	}
	if gotPath != "/wallets/escrow-master/withdraw" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.Address != "0xBUYER" {
		t.Fatalf("address = %q, want 0xBUYER", gotBody.Address)
	}
}

func TestTransferProviderRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"insufficient funds"}`))
	})

	_, err := client.ReverseFromEscrow(context.Background(), "acct-seller",
		decimal.RequireFromString("2.002"), "CNGN", "0xSELLER", "P2P-ABC-REVERSAL")
	if err == nil {
		t.Fatal("expected error from 422 response")
	}
	if kind := p2pdomain.KindOf(err); kind != p2pdomain.KindExternalProvider {
		t.Fatalf("kind = %v, want KindExternalProvider", kind)
	}
}

func TestTransferMalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})

	_, err := client.EscrowDeposit(context.Background(), "acct-seller",
		decimal.RequireFromString("1"), "CNGN", "key-1")
	if err == nil {
		t.Fatal("expected error when provider omits transaction id")
	}
	if kind := p2pdomain.KindOf(err); kind != p2pdomain.KindExternalProvider {
		t.Fatalf("kind = %v, want KindExternalProvider", kind)
	}
}

func TestGetBalance(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("asset"); got != "CNGN" {
			t.Fatalf("asset query = %q", got)
		}
		w.Write([]byte(`{"data":{"available":"5.5","locked":"1.25","total":"6.75"}}`))
	})

	bal, err := client.GetBalance(context.Background(), "wal-ext-1", "CNGN")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Available.String() != "5.5" || bal.Locked.String() != "1.25" || bal.Total.String() != "6.75" {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}
