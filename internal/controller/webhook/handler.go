package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/gateway"
	"github.com/Freeeeeet/bookspace/internal/metrics"
	"github.com/Freeeeeet/bookspace/internal/service"
)

// maxBodySize вебхуки шлюзов маленькие, всё крупнее подозрительно
const maxBodySize = 1 << 20

// Handler принимает вебхуки платёжных шлюзов. Подпись проверяется по
// сырому телу до любого парсинга; непрошедшие запросы получают 401.
// Бизнес-отказы отвечают 200, чтобы шлюз не ретраил заведомо
// неисправимое; 5xx остаётся за транзиентными сбоями.
type Handler struct {
	payments *service.PaymentService
	secret   string
	logger   *zap.Logger
}

func NewHandler(payments *service.PaymentService, secret string, logger *zap.Logger) *Handler {
	return &Handler{
		payments: payments,
		secret:   secret,
		logger:   logger,
	}
}

// Register добавляет маршруты вебхуков и служебные эндпоинты
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/webhooks/{provider}", h.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// webhookPayload минимальная форма вебхука. Из тела берётся только
// event и reference; статусы и суммы перепроверяются у шлюза.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		TxRef     string `json:"tx_ref"`
	} `json:"data"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("read_error").Inc()
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(signatureHeader(provider))
	if !gateway.VerifySignature(body, signature, h.secret) {
		metrics.WebhooksReceived.WithLabelValues("bad_signature").Inc()
		h.logger.Warn("Webhook signature mismatch",
			zap.String("provider", provider),
			zap.String("remote", r.RemoteAddr),
		)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhooksReceived.WithLabelValues("bad_payload").Inc()
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	reference := payload.Data.Reference
	if reference == "" {
		reference = payload.Data.TxRef
	}
	if reference == "" {
		metrics.WebhooksReceived.WithLabelValues("bad_payload").Inc()
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	h.logger.Info("Webhook received",
		zap.String("provider", provider),
		zap.String("event", payload.Event),
		zap.String("reference", reference),
	)

	err = h.dispatch(r, payload.Event, reference)
	switch {
	case err == nil:
		metrics.WebhooksReceived.WithLabelValues("ok").Inc()
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, service.ErrGatewayTransient):
		// шлюз ретраит 5xx, транзиентный сбой доедет со следующей попыткой
		metrics.WebhooksReceived.WithLabelValues("transient").Inc()
		h.logger.Warn("Webhook processing hit transient failure", zap.Error(err))
		http.Error(w, "temporary failure", http.StatusServiceUnavailable)
	default:
		// терминальный отказ: отвечаем 200, ретрай шлюза ничего не изменит
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		h.logger.Error("Webhook rejected",
			zap.String("event", payload.Event),
			zap.String("reference", reference),
			zap.Error(err),
		)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) dispatch(r *http.Request, event, reference string) error {
	switch event {
	case "charge.success", "charge.completed", "charge.failed":
		return h.payments.ProcessChargeEvent(r.Context(), reference)
	case "transfer.success", "transfer.completed":
		return h.payments.ProcessTransferEvent(r.Context(), reference, true)
	case "transfer.failed", "transfer.reversed":
		return h.payments.ProcessTransferEvent(r.Context(), reference, false)
	default:
		h.logger.Debug("Ignoring webhook event", zap.String("event", event))
		return nil
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// signatureHeader возвращает имя заголовка подписи провайдера
func signatureHeader(provider string) string {
	if provider == "flutterwave" {
		return "verif-hash"
	}
	return "x-paystack-signature"
}
