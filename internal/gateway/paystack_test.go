package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/metrics"
)

func TestPaystackInitializeCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		// 1500.00 NGN превращаются в кобо
		require.EqualValues(t, 150000, payload["amount"])
		require.Equal(t, "PAY-1", payload["reference"])

		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         "PAY-1",
			},
		})
	}))
	defer srv.Close()

	p := NewPaystackWithBaseURL("sk_test", srv.URL, zap.NewNop())
	okBefore := testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("initialize_charge", "ok"))
	init, err := p.InitializeCharge(context.Background(), "user@example.com", decimal.NewFromInt(1500), "PAY-1")
	require.NoError(t, err)
	require.Equal(t, "https://checkout.paystack.com/abc", init.RedirectURL)
	require.Equal(t, "PAY-1", init.Reference)
	require.Equal(t, okBefore+1, testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("initialize_charge", "ok")))
}

func TestPaystackVerifyCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/verify/PAY-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status":    "success",
				"amount":    150000,
				"reference": "PAY-1",
				"authorization": map[string]any{
					"channel": "card",
				},
			},
		})
	}))
	defer srv.Close()

	p := NewPaystackWithBaseURL("sk_test", srv.URL, zap.NewNop())
	status, err := p.VerifyCharge(context.Background(), "PAY-1")
	require.NoError(t, err)
	require.Equal(t, "success", status.Status)
	require.Equal(t, "card", status.Method)
	// кобо обратно в найры
	require.True(t, status.Amount.Equal(decimal.NewFromInt(1500)))
}

func TestPaystackServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPaystackWithBaseURL("sk_test", srv.URL, zap.NewNop())
	transientBefore := testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("verify_charge", "transient"))
	_, err := p.VerifyCharge(context.Background(), "PAY-1")
	require.ErrorIs(t, err, ErrTransient)
	require.Equal(t, transientBefore+1, testutil.ToFloat64(metrics.GatewayRequests.WithLabelValues("verify_charge", "transient")))
}

func TestPaystackDeclineIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid key",
		})
	}))
	defer srv.Close()

	p := NewPaystackWithBaseURL("sk_test", srv.URL, zap.NewNop())
	_, err := p.InitiateTransfer(context.Background(), "RCP_1", decimal.NewFromInt(100), "WTH-1", "payout")
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorContains(t, err, "Invalid key")
}

func TestPaystackUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // соединение будет отклонено

	p := NewPaystackWithBaseURL("sk_test", srv.URL, zap.NewNop())
	_, err := p.CreatePayoutRecipient(context.Background(), BankDetails{
		AccountNumber: "0123456789",
		AccountName:   "Acme",
		BankCode:      "058",
	})
	require.ErrorIs(t, err, ErrTransient)
}

func TestPaystackCreateRecipientAndTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transferrecipient":
			json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data":   map[string]any{"recipient_code": "RCP_123"},
			})
		case "/transfer":
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Equal(t, "balance", payload["source"])
			require.Equal(t, "RCP_123", payload["recipient"])
			json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data":   map[string]any{"transfer_code": "TRF_123", "reference": "WTH-1"},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := NewPaystackWithBaseURL("sk_test", srv.URL, zap.NewNop())

	recipient, err := p.CreatePayoutRecipient(context.Background(), BankDetails{
		AccountNumber: "0123456789",
		AccountName:   "Acme",
		BankCode:      "058",
	})
	require.NoError(t, err)
	require.Equal(t, "RCP_123", recipient)

	ref, err := p.InitiateTransfer(context.Background(), recipient, decimal.NewFromInt(4900), "WTH-1", "payout")
	require.NoError(t, err)
	require.Equal(t, "TRF_123", ref)
}
