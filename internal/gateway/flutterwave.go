package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const flutterwaveBaseURL = "https://api.flutterwave.com/v3"

// Flutterwave клиент Flutterwave v3 API. Суммы в найрах.
type Flutterwave struct {
	secretKey string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

func NewFlutterwave(secretKey string, logger *zap.Logger) *Flutterwave {
	return &Flutterwave{
		secretKey: secretKey,
		baseURL:   flutterwaveBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// NewFlutterwaveWithBaseURL используется в тестах с httptest-сервером
func NewFlutterwaveWithBaseURL(secretKey, baseURL string, logger *zap.Logger) *Flutterwave {
	f := NewFlutterwave(secretKey, logger)
	f.baseURL = baseURL
	return f
}

func (f *Flutterwave) Name() string { return "flutterwave" }

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *Flutterwave) do(ctx context.Context, op, method, path string, payload any) (json.RawMessage, error) {
	data, err := f.request(ctx, method, path, payload)
	observeRequest(op, err)
	return data, err
}

func (f *Flutterwave) request(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("Flutterwave request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: flutterwave status %d", ErrTransient, resp.StatusCode)
	}

	var env flutterwaveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrRejected, err)
	}
	if resp.StatusCode >= 400 || env.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}

	return env.Data, nil
}

func (f *Flutterwave) InitializeCharge(ctx context.Context, email string, amount decimal.Decimal, reference string) (*ChargeInit, error) {
	payload := map[string]any{
		"tx_ref":   reference,
		"amount":   amount.InexactFloat64(),
		"currency": "NGN",
		"customer": map[string]any{"email": email},
	}

	data, err := f.do(ctx, "initialize_charge", http.MethodPost, "/payments", payload)
	if err != nil {
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	var out struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse payment data: %v", ErrRejected, err)
	}

	return &ChargeInit{RedirectURL: out.Link, Reference: reference}, nil
}

func (f *Flutterwave) VerifyCharge(ctx context.Context, reference string) (*ChargeStatus, error) {
	data, err := f.do(ctx, "verify_charge", http.MethodGet, "/transactions/verify_by_reference?tx_ref="+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("verify transaction: %w", err)
	}

	var out struct {
		Status      string          `json:"status"`
		Amount      decimal.Decimal `json:"amount"`
		TxRef       string          `json:"tx_ref"`
		PaymentType string          `json:"payment_type"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse verify data: %v", ErrRejected, err)
	}

	// Flutterwave отдаёт "successful" там, где Paystack отдаёт "success"
	status := out.Status
	if status == "successful" {
		status = "success"
	}

	return &ChargeStatus{
		Status:    status,
		Amount:    out.Amount,
		Method:    out.PaymentType,
		Reference: out.TxRef,
	}, nil
}

func (f *Flutterwave) CreatePayoutRecipient(ctx context.Context, bank BankDetails) (string, error) {
	// У Flutterwave прямые переводы без отдельного получателя; реквизиты
	// кодируются в ссылку получателя и разворачиваются в InitiateTransfer.
	return bank.BankCode + ":" + bank.AccountNumber + ":" + bank.AccountName, nil
}

func (f *Flutterwave) InitiateTransfer(ctx context.Context, recipientRef string, amount decimal.Decimal, reference, reason string) (string, error) {
	bankCode, accountNumber, accountName, err := splitRecipientRef(recipientRef)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"account_bank":     bankCode,
		"account_number":   accountNumber,
		"beneficiary_name": accountName,
		"amount":           amount.InexactFloat64(),
		"currency":         "NGN",
		"narration":        reason,
		"reference":        reference,
	}

	data, err := f.do(ctx, "initiate_transfer", http.MethodPost, "/transfers", payload)
	if err != nil {
		return "", fmt.Errorf("initiate transfer: %w", err)
	}

	var out struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: parse transfer data: %v", ErrRejected, err)
	}

	return fmt.Sprintf("%d", out.ID), nil
}

func splitRecipientRef(ref string) (bankCode, accountNumber, accountName string, err error) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: malformed recipient ref", ErrRejected)
	}
	return parts[0], parts[1], parts[2], nil
}
