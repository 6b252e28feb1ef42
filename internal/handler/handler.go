// Package handler содержит HTTP-обработчики API сервиса замены товаров.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/expiration"
	"github.com/mmeshcher/order-replacement/internal/middleware"
	"github.com/mmeshcher/order-replacement/internal/model"
	"github.com/mmeshcher/order-replacement/internal/service"
	"github.com/mmeshcher/order-replacement/internal/shopify"
)

const maxBodySize = 1 << 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	SubmitResponse(ctx context.Context, orderName string, decisions []model.Decision) (model.ResponseResult, error)
	GetProposals(ctx context.Context, orderName string) (service.ProposalView, error)
	BuildProposal(ctx context.Context, orderID string, selections map[string]model.Replacement) (model.Proposal, error)
	Reconcile(ctx context.Context, orderID string) ([]model.LineItemOutcome, error)
	ListBatches(ctx context.Context, status model.OrderStatus) ([]model.BatchSummary, error)
}

// Handler реализует HTTP-обработчики API сервиса замены товаров.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

const resultInvalidInput = "invalid_input"

type resultResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type decisionRequest struct {
	OrderID       string `json:"orderId"`
	ProductID     string `json:"productId"`
	ReplacementID string `json:"replacementId"`
	Status        string `json:"status"`
}

func statusForResult(result model.ResponseResult) int {
	switch result {
	case model.ResultSuccess:
		return http.StatusOK
	case model.ResultNotFound:
		return http.StatusNotFound
	case model.ResultAlreadyResponded:
		return http.StatusConflict
	case model.ResultExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func parseLineItemStatus(s string) model.LineItemStatus {
	switch {
	case strings.EqualFold(s, string(model.LineItemStatusAccepted)):
		return model.LineItemStatusAccepted
	case strings.EqualFold(s, string(model.LineItemStatusRejected)):
		return model.LineItemStatusRejected
	default:
		return model.LineItemStatus(s)
	}
}

// SubmitResponse принимает решения покупателя по предложенным заменам.
func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	orderName := chi.URLParam(r, "orderName")

	var req []decisionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Result: resultInvalidInput, Message: "malformed request body"})
		return
	}

	decisions := make([]model.Decision, 0, len(req))
	for _, d := range req {
		decisions = append(decisions, model.Decision{
			OrderName:             d.OrderID,
			OriginalProductRef:    d.ProductID,
			ReplacementProductRef: d.ReplacementID,
			Status:                parseLineItemStatus(d.Status),
		})
	}

	result, err := h.service.SubmitResponse(r.Context(), orderName, decisions)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, resultResponse{Result: resultInvalidInput, Message: err.Error()})
			return
		}
		h.logger.Error("submit response error", zap.Error(err), zap.String("order", orderName))
		result = model.ResultPersistenceError
	}

	writeJSON(w, statusForResult(result), resultResponse{Result: string(result), Message: result.Message()})
}

type recordResponse struct {
	ID                     string     `json:"id"`
	OrderID                string     `json:"orderId"`
	OrderName              string     `json:"orderName"`
	OriginalProductID      string     `json:"originalProductId"`
	OriginalTitle          string     `json:"originalTitle"`
	Quantity               int        `json:"quantity"`
	UnitPrice              string     `json:"unitPrice"`
	TotalPrice             string     `json:"totalPrice"`
	Currency               string     `json:"currency"`
	ReplacementProductID   string     `json:"replacementProductId"`
	ReplacementTitle       string     `json:"replacementTitle"`
	ReplacementQuantity    int        `json:"replacementQuantity"`
	ReplacementPrice       string     `json:"replacementPrice"`
	TotalReplacementAmount string     `json:"totalReplacementAmount"`
	Balance                string     `json:"balance"`
	Custom                 bool       `json:"custom"`
	CustomerName           string     `json:"customerName"`
	OrderStatus            string     `json:"orderStatus"`
	LineItemStatus         string     `json:"lineItemStatus,omitempty"`
	SendDate               string     `json:"sendDate"`
	AcceptedDate           *time.Time `json:"acceptedDate,omitempty"`
	ConfirmedDate          *time.Time `json:"confirmedDate,omitempty"`
}

func toRecordResponses(records []model.ReplacementRecord) []recordResponse {
	res := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		res = append(res, recordResponse{
			ID:                     rec.ID,
			OrderID:                rec.OrderID,
			OrderName:              rec.OrderName,
			OriginalProductID:      rec.OriginalProductRef,
			OriginalTitle:          rec.OriginalTitle,
			Quantity:               rec.Quantity,
			UnitPrice:              rec.UnitPrice.StringFixed(2),
			TotalPrice:             rec.TotalPrice.StringFixed(2),
			Currency:               rec.Currency,
			ReplacementProductID:   rec.ReplacementProductRef,
			ReplacementTitle:       rec.ReplacementTitle,
			ReplacementQuantity:    rec.ReplacementQuantity,
			ReplacementPrice:       rec.ReplacementPrice.StringFixed(2),
			TotalReplacementAmount: rec.TotalReplacementAmount.StringFixed(2),
			Balance:                rec.Balance.StringFixed(2),
			Custom:                 rec.IsCustom(),
			CustomerName:           rec.CustomerName,
			OrderStatus:            string(rec.OrderStatus),
			LineItemStatus:         string(rec.LineItemStatus),
			SendDate:               rec.SendDate.Format(time.RFC3339),
			AcceptedDate:           rec.AcceptedDate,
			ConfirmedDate:          rec.ConfirmedDate,
		})
	}
	return res
}

type proposalsResponse struct {
	Result        string           `json:"result"`
	Message       string           `json:"message"`
	Remaining     int64            `json:"remaining"`
	RemainingText string           `json:"remainingText"`
	Items         []recordResponse `json:"items"`
}

// GetProposals возвращает предложенные замены заказа и возможность ответить на них.
// Параметр запроса orderId, если задан, заменяет имя заказа из пути.
func (h *Handler) GetProposals(w http.ResponseWriter, r *http.Request) {
	orderName := chi.URLParam(r, "orderName")
	if q := r.URL.Query().Get("orderId"); q != "" {
		orderName = q
	}

	view, err := h.service.GetProposals(r.Context(), orderName)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, resultResponse{Result: resultInvalidInput, Message: err.Error()})
			return
		}
		h.logger.Error("get proposals error", zap.Error(err), zap.String("order", orderName))
		view.Result = model.ResultPersistenceError
	}

	writeJSON(w, statusForResult(view.Result), proposalsResponse{
		Result:        string(view.Result),
		Message:       proposalsMessage(view.Result),
		Remaining:     int64(view.Remaining / time.Second),
		RemainingText: expiration.Format(view.Remaining),
		Items:         toRecordResponses(view.Records),
	})
}

func proposalsMessage(result model.ResponseResult) string {
	if result == model.ResultSuccess {
		return "Awaiting customer response"
	}
	return result.Message()
}

type proposalRequest struct {
	Replacements map[string]model.Replacement `json:"replacements"`
}

type proposalResponse struct {
	OrderID   string           `json:"orderId"`
	OrderName string           `json:"orderName"`
	Items     []recordResponse `json:"items"`
}

// BuildProposal создаёт пакет замен по выбору сотрудника и уведомляет покупателя.
func (h *Handler) BuildProposal(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req proposalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	proposal, err := h.service.BuildProposal(r.Context(), orderID, req.Replacements)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrEmptyProposal):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrProposalExists):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, shopify.ErrOrderNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrOrderLookup), errors.Is(err, service.ErrNotificationFailed):
			h.logger.Error("build proposal upstream error", zap.Error(err), zap.String("order", orderID))
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			h.logger.Error("build proposal error", zap.Error(err), zap.String("order", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, proposalResponse{
		OrderID:   proposal.OrderID,
		OrderName: proposal.OrderName,
		Items:     toRecordResponses(proposal.Records),
	})
}

// Reconcile применяет ответ покупателя к заказу и возвращает результат по каждой позиции.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	outcomes, err := h.service.Reconcile(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrBatchNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrBatchNotAccepted):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("reconcile error", zap.Error(err), zap.String("order", orderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	if staff, ok := middleware.GetStaffFromContext(r.Context()); ok {
		h.logger.Info("reconcile requested", zap.String("staff", staff), zap.String("order", orderID))
	}

	writeJSON(w, http.StatusOK, outcomes)
}

// ListBatches возвращает пакеты замен с указанным статусом, по умолчанию Accepted.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.OrderStatusAccepted
	}

	batches, err := h.service.ListBatches(r.Context(), status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("list batches error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(batches) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, batches)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
