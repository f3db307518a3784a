package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const paystackBaseURL = "https://api.paystack.co"

// Paystack клиент Paystack API. Суммы передаются в кобо.
type Paystack struct {
	secretKey string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
}

func NewPaystack(secretKey string, logger *zap.Logger) *Paystack {
	return &Paystack{
		secretKey: secretKey,
		baseURL:   paystackBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// NewPaystackWithBaseURL используется в тестах с httptest-сервером
func NewPaystackWithBaseURL(secretKey, baseURL string, logger *zap.Logger) *Paystack {
	p := NewPaystack(secretKey, logger)
	p.baseURL = baseURL
	return p
}

func (p *Paystack) Name() string { return "paystack" }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do выполняет запрос и разбирает конверт ответа. Сетевые ошибки и 5xx
// мапятся в ErrTransient, отказ провайдера - в ErrRejected.
func (p *Paystack) do(ctx context.Context, op, method, path string, payload any) (json.RawMessage, error) {
	data, err := p.request(ctx, method, path, payload)
	observeRequest(op, err)
	return data, err
}

func (p *Paystack) request(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("Paystack request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: paystack status %d", ErrTransient, resp.StatusCode)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrRejected, err)
	}
	if resp.StatusCode >= 400 || !env.Status {
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}

	return env.Data, nil
}

func (p *Paystack) InitializeCharge(ctx context.Context, email string, amount decimal.Decimal, reference string) (*ChargeInit, error) {
	payload := map[string]any{
		"email":     email,
		"amount":    toKobo(amount),
		"reference": reference,
	}

	data, err := p.do(ctx, "initialize_charge", http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}

	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse initialize data: %v", ErrRejected, err)
	}

	return &ChargeInit{
		RedirectURL: out.AuthorizationURL,
		AccessCode:  out.AccessCode,
		Reference:   out.Reference,
	}, nil
}

func (p *Paystack) VerifyCharge(ctx context.Context, reference string) (*ChargeStatus, error) {
	data, err := p.do(ctx, "verify_charge", http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("verify transaction: %w", err)
	}

	var out struct {
		Status        string `json:"status"`
		Amount        int64  `json:"amount"` // кобо
		Reference     string `json:"reference"`
		Authorization struct {
			Channel string `json:"channel"`
		} `json:"authorization"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: parse verify data: %v", ErrRejected, err)
	}

	return &ChargeStatus{
		Status:    out.Status,
		Amount:    fromKobo(out.Amount),
		Method:    out.Authorization.Channel,
		Reference: out.Reference,
	}, nil
}

func (p *Paystack) CreatePayoutRecipient(ctx context.Context, bank BankDetails) (string, error) {
	payload := map[string]any{
		"type":           "nuban",
		"account_number": bank.AccountNumber,
		"bank_code":      bank.BankCode,
		"name":           bank.AccountName,
	}

	data, err := p.do(ctx, "create_recipient", http.MethodPost, "/transferrecipient", payload)
	if err != nil {
		return "", fmt.Errorf("create transfer recipient: %w", err)
	}

	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: parse recipient data: %v", ErrRejected, err)
	}

	return out.RecipientCode, nil
}

func (p *Paystack) InitiateTransfer(ctx context.Context, recipientRef string, amount decimal.Decimal, reference, reason string) (string, error) {
	payload := map[string]any{
		"source":    "balance",
		"reason":    reason,
		"amount":    toKobo(amount),
		"recipient": recipientRef,
		"reference": reference,
	}

	data, err := p.do(ctx, "initiate_transfer", http.MethodPost, "/transfer", payload)
	if err != nil {
		return "", fmt.Errorf("initiate transfer: %w", err)
	}

	var out struct {
		TransferCode string `json:"transfer_code"`
		Reference    string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: parse transfer data: %v", ErrRejected, err)
	}

	return out.TransferCode, nil
}

// toKobo конвертирует найры в кобо
func toKobo(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func fromKobo(kobo int64) decimal.Decimal {
	return decimal.NewFromInt(kobo).Div(decimal.NewFromInt(100))
}
