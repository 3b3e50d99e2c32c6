// Package handler содержит HTTP-обработчики API сервиса пресейла.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/wusle-presale/internal/chain"
	"github.com/mmeshcher/wusle-presale/internal/middleware"
	"github.com/mmeshcher/wusle-presale/internal/model"
	"github.com/mmeshcher/wusle-presale/internal/presale"
	"github.com/mmeshcher/wusle-presale/internal/repository"
	"github.com/mmeshcher/wusle-presale/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetPresaleSnapshot(ctx context.Context) (*presale.Snapshot, error)
	CreateSlip(ctx context.Context, req service.PurchaseRequest) (*model.Slip, error)
	GetSlipsByUser(ctx context.Context, userID int64) ([]model.Slip, error)
	GetUserTotals(ctx context.Context, userID int64) (model.UserTotals, error)
}

// Handler реализует HTTP-обработчики API сервиса пресейла.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	push           http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// push — обработчик websocket-канала; nil отключает маршрут.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, push http.Handler) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		push:           push,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// GetPresale возвращает снимок состояния пресейла: этапы, текущий этап,
// время окончания, курс и прогресс сбора.
func (h *Handler) GetPresale(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetPresaleSnapshot(r.Context())
	if err != nil {
		h.logger.Error("get presale snapshot error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load presale state")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type createSlipRequest struct {
	WalletAddress  string  `json:"walletAddress"`
	Currency       string  `json:"currency"`
	AmountPaid     float64 `json:"amountPaid"`
	WuslePurchased float64 `json:"wuslePurchased"`
	TxSignature    string  `json:"txSignature"`
}

type slipResponse struct {
	ID             int64   `json:"id"`
	WalletAddress  string  `json:"walletAddress"`
	Currency       string  `json:"currency"`
	AmountPaid     float64 `json:"amountPaid"`
	WuslePurchased float64 `json:"wuslePurchased"`
	RedeemCode     string  `json:"redeemCode"`
	TxSignature    string  `json:"txSignature"`
	CreatedAt      string  `json:"createdAt"`
}

func toSlipResponse(s *model.Slip) slipResponse {
	return slipResponse{
		ID:             s.ID,
		WalletAddress:  s.WalletAddress,
		Currency:       string(s.Currency),
		AmountPaid:     s.AmountPaid,
		WuslePurchased: s.WuslePurchased,
		RedeemCode:     s.RedeemCode,
		TxSignature:    s.TxSignature,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
}

// CreateSlip создаёт квитанцию о покупке для текущего пользователя.
// Поле wuslePurchased запроса принимается для совместимости, но количество
// токенов пересчитывается на сервере.
func (h *Handler) CreateSlip(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createSlipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	slip, err := h.service.CreateSlip(r.Context(), service.PurchaseRequest{
		UserID:        userID,
		WalletAddress: req.WalletAddress,
		Currency:      model.Currency(req.Currency),
		AmountPaid:    req.AmountPaid,
		TxSignature:   req.TxSignature,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount),
			errors.Is(err, service.ErrUnsupportedCurrency),
			errors.Is(err, service.ErrInvalidWallet),
			errors.Is(err, service.ErrInvalidSignature):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNoActiveStage):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, repository.ErrDuplicateTransaction):
			writeError(w, http.StatusConflict, "transaction already recorded")
		case errors.Is(err, chain.ErrTransferMismatch),
			errors.Is(err, chain.ErrTransactionFailed),
			errors.Is(err, chain.ErrTransactionNotFound):
			writeError(w, http.StatusUnprocessableEntity, "payment verification failed")
		default:
			h.logger.Error("create slip error", zap.Error(err), zap.Int64("userID", userID))
			writeError(w, http.StatusInternalServerError, "failed to create slip")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]slipResponse{"slip": toSlipResponse(slip)})
}

// GetSlips возвращает историю покупок текущего пользователя.
func (h *Handler) GetSlips(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	slips, err := h.service.GetSlipsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get slips error", zap.Error(err), zap.Int64("userID", userID))
		writeError(w, http.StatusInternalServerError, "failed to load slips")
		return
	}

	resp := make([]slipResponse, 0, len(slips))
	for i := range slips {
		resp = append(resp, toSlipResponse(&slips[i]))
	}

	writeJSON(w, http.StatusOK, map[string][]slipResponse{"slips": resp})
}

// GetBalance возвращает накопленные итоги покупок текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	totals, err := h.service.GetUserTotals(r.Context(), userID)
	if err != nil {
		h.logger.Error("get totals error", zap.Error(err), zap.Int64("userID", userID))
		writeError(w, http.StatusInternalServerError, "failed to load totals")
		return
	}

	writeJSON(w, http.StatusOK, totals)
}
