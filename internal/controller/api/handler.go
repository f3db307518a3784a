package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Freeeeeet/bookspace/internal/model"
	"github.com/Freeeeeet/bookspace/internal/service"
)

// Handler REST API ядра бронирования
type Handler struct {
	calendar     *service.CalendarService
	reservations *service.ReservationService
	carts        *service.CartService
	wallets      *service.WalletService
	withdrawals  *service.WithdrawalService
	payments     *service.PaymentService
	logger       *zap.Logger
}

func NewHandler(
	calendar *service.CalendarService,
	reservations *service.ReservationService,
	carts *service.CartService,
	wallets *service.WalletService,
	withdrawals *service.WithdrawalService,
	payments *service.PaymentService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		calendar:     calendar,
		reservations: reservations,
		carts:        carts,
		wallets:      wallets,
		withdrawals:  withdrawals,
		payments:     payments,
		logger:       logger,
	}
}

// Register добавляет маршруты API
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/spaces/{id}/slots", h.generateSlots).Methods(http.MethodPost)
	r.HandleFunc("/spaces/{id}/availability", h.availability).Methods(http.MethodGet)
	r.HandleFunc("/spaces/{id}/block", h.blockSlots).Methods(http.MethodPost)
	r.HandleFunc("/spaces/{id}/unblock", h.unblockSlots).Methods(http.MethodPost)

	r.HandleFunc("/reservations", h.hold).Methods(http.MethodPost)
	r.HandleFunc("/reservations/{id}", h.getReservation).Methods(http.MethodGet)
	r.HandleFunc("/reservations/{id}", h.release).Methods(http.MethodDelete)

	r.HandleFunc("/carts/{userID}", h.getCart).Methods(http.MethodGet)
	r.HandleFunc("/carts/{userID}/items", h.addCartItem).Methods(http.MethodPost)
	r.HandleFunc("/carts/{userID}/items/{itemID}", h.removeCartItem).Methods(http.MethodDelete)
	r.HandleFunc("/carts/{userID}/clear", h.clearCart).Methods(http.MethodPost)
	r.HandleFunc("/carts/{userID}/checkout", h.checkout).Methods(http.MethodPost)

	r.HandleFunc("/orders/{id}/pay", h.payOrder).Methods(http.MethodPost)

	r.HandleFunc("/wallets/{id}", h.getWallet).Methods(http.MethodGet)
	r.HandleFunc("/wallets/{id}/transactions", h.walletTransactions).Methods(http.MethodGet)
	r.HandleFunc("/wallets/deposits", h.deposit).Methods(http.MethodPost)

	r.HandleFunc("/withdrawals", h.requestWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id}/approve", h.approveWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id}/process", h.processWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals/{id}/cancel", h.cancelWithdrawal).Methods(http.MethodPost)
}

type slotGenRequest struct {
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	BookingType model.BookingType `json:"booking_type"`
}

func (h *Handler) generateSlots(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req slotGenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := h.calendar.GenerateSlots(r.Context(), spaceID, req.From, req.To, req.BookingType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	start, end, bt, ok := windowQuery(w, r)
	if !ok {
		return
	}

	status, err := h.calendar.GetStatus(r.Context(), spaceID, start, end, bt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type blockRequest struct {
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	BookingType model.BookingType `json:"booking_type"`
	Maintenance bool              `json:"maintenance"`
}

func (h *Handler) blockSlots(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req blockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	to := model.SlotStatusBlocked
	if req.Maintenance {
		to = model.SlotStatusMaintenance
	}
	affected, err := h.calendar.Block(r.Context(), spaceID, req.Start, req.End, req.BookingType, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected": affected})
}

func (h *Handler) unblockSlots(w http.ResponseWriter, r *http.Request) {
	spaceID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req blockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	affected, err := h.calendar.Unblock(r.Context(), spaceID, req.Start, req.End, req.BookingType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected": affected})
}

type holdRequest struct {
	UserID      uuid.UUID         `json:"user_id"`
	SpaceID     uuid.UUID         `json:"space_id"`
	BookingType model.BookingType `json:"booking_type"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.reservations.Hold(r.Context(), req.UserID, req.SpaceID, req.BookingType, req.Start, req.End)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.reservations.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.reservations.Release(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	cart, items, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart, "items": items})
}

type addItemRequest struct {
	SpaceID     uuid.UUID         `json:"space_id"`
	BookingType model.BookingType `json:"booking_type"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.carts.AddItem(r.Context(), userID, req.SpaceID, req.BookingType, req.Start, req.End)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), userID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	result, err := h.carts.Checkout(r.Context(), userID)
	if err != nil && result == nil {
		h.writeError(w, err)
		return
	}

	skipped := make([]map[string]any, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped = append(skipped, map[string]any{
			"item_id":        s.ItemID,
			"reservation_id": s.ReservationID,
			"reason":         s.Reason.Error(),
		})
	}

	status := http.StatusCreated
	if result.Order == nil {
		// ни одна позиция не пережила checkout
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"order":    result.Order,
		"bookings": result.Bookings,
		"skipped":  skipped,
	})
}

type payRequest struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Currency string    `json:"currency"`
	Method   string    `json:"method"` // "gateway" (default) или "wallet"
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req payRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Method == "wallet" {
		if err := h.payments.PayWithWallet(r.Context(), req.UserID, orderID, req.Currency); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
		return
	}

	payment, err := h.payments.InitiateCharge(r.Context(), req.UserID, orderID, req.Email, req.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	wallet, err := h.wallets.Balance(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *Handler) walletTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.wallets.History(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type depositRequest struct {
	UserID   uuid.UUID       `json:"user_id"`
	Email    string          `json:"email"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	dep, err := h.payments.InitiateDeposit(r.Context(), req.UserID, req.Email, req.Currency, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

type withdrawalRequestBody struct {
	RequestedBy   uuid.UUID       `json:"requested_by"`
	WalletID      uuid.UUID       `json:"wallet_id"`
	BankAccountID uuid.UUID       `json:"bank_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

func (h *Handler) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequestBody
	if !decodeBody(w, r, &req) {
		return
	}

	wd, err := h.withdrawals.Request(r.Context(), req.RequestedBy, req.WalletID, req.BankAccountID, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

func (h *Handler) approveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalAction(w, r, h.withdrawals.Approve)
}

func (h *Handler) processWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalAction(w, r, h.withdrawals.Process)
}

func (h *Handler) cancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.withdrawalAction(w, r, h.withdrawals.Cancel)
}

func (h *Handler) withdrawalAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) error) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError мапит сервисную таксономию на HTTP-статусы
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrReservationExpired):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidWindow),
		errors.Is(err, service.ErrWindowOutOfPolicy),
		errors.Is(err, service.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrWalletLocked),
		errors.Is(err, service.ErrGatewayRejected),
		errors.Is(err, service.ErrAmountMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrGatewayTransient):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func windowQuery(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, model.BookingType, bool) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start"})
		return time.Time{}, time.Time{}, "", false
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end"})
		return time.Time{}, time.Time{}, "", false
	}
	bt := model.BookingType(q.Get("type"))
	if bt == "" {
		bt = model.BookingTypeHourly
	}
	return start, end, bt, true
}
