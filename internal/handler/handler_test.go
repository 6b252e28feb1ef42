package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/middleware"
	"github.com/mmeshcher/order-replacement/internal/model"
	"github.com/mmeshcher/order-replacement/internal/service"
	"github.com/mmeshcher/order-replacement/internal/shopify"
)

type stubService struct {
	submitResult    model.ResponseResult
	submitErr       error
	submitName      string
	submitDecisions []model.Decision

	proposalsView service.ProposalView
	proposalsErr  error
	proposalsName string

	buildResp       model.Proposal
	buildErr        error
	buildSelections map[string]model.Replacement

	reconcileResp []model.LineItemOutcome
	reconcileErr  error

	batchesResp []model.BatchSummary
	batchesErr  error
}

func (s *stubService) SubmitResponse(ctx context.Context, orderName string, decisions []model.Decision) (model.ResponseResult, error) {
	s.submitName = orderName
	s.submitDecisions = decisions
	return s.submitResult, s.submitErr
}

func (s *stubService) GetProposals(ctx context.Context, orderName string) (service.ProposalView, error) {
	s.proposalsName = orderName
	return s.proposalsView, s.proposalsErr
}

func (s *stubService) BuildProposal(ctx context.Context, orderID string, selections map[string]model.Replacement) (model.Proposal, error) {
	s.buildSelections = selections
	return s.buildResp, s.buildErr
}

func (s *stubService) Reconcile(ctx context.Context, orderID string) ([]model.LineItemOutcome, error) {
	return s.reconcileResp, s.reconcileErr
}

func (s *stubService) ListBatches(ctx context.Context, status model.OrderStatus) ([]model.BatchSummary, error) {
	return s.batchesResp, s.batchesErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func decodeResult(t *testing.T, res *http.Response) resultResponse {
	t.Helper()

	var body resultResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestSubmitResponse_GzipRoundTrip(t *testing.T) {
	svc := &stubService{submitResult: model.ResultSuccess}
	h := newTestHandler(t, svc)

	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	_, err := zw.Write([]byte(`[{"orderId":"1001","productId":"gid://shopify/LineItem/1","replacementId":"custom_x","status":"Accepted"},` +
		`{"orderId":"1001","productId":"gid://shopify/LineItem/2","replacementId":"gid://shopify/Product/9","status":"rejected"}]`))
	if err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/1001/responses", &body)
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ce := res.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding = %q, want gzip", ce)
	}

	zr, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer zr.Close()

	var got resultResponse
	if err := json.NewDecoder(zr).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Result != "success" || got.Message == "" {
		t.Fatalf("unexpected body: %+v", got)
	}

	if len(svc.submitDecisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(svc.submitDecisions))
	}
	if svc.submitDecisions[1].Status != model.LineItemStatusRejected {
		t.Fatalf("second decision = %q, want Rejected", svc.submitDecisions[1].Status)
	}
}

func TestSubmitResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		result     model.ResponseResult
		err        error
		wantStatus int
		wantResult string
	}{
		{name: "success", result: model.ResultSuccess, wantStatus: http.StatusOK, wantResult: "success"},
		{name: "not found", result: model.ResultNotFound, wantStatus: http.StatusNotFound, wantResult: "not_found"},
		{name: "already responded", result: model.ResultAlreadyResponded, wantStatus: http.StatusConflict, wantResult: "already_responded"},
		{name: "expired", result: model.ResultExpired, wantStatus: http.StatusGone, wantResult: "expired"},
		{name: "persistence", result: model.ResultPersistenceError, err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantResult: "persistence_error"},
		{name: "invalid input", err: fmt.Errorf("%w: bad", service.ErrInvalidInput), wantStatus: http.StatusBadRequest, wantResult: resultInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{submitResult: tt.result, submitErr: tt.err}
			h := newTestHandler(t, svc)

			body := `[{"orderId":"1001","productId":"gid://shopify/LineItem/1","replacementId":"custom_x","status":"accepted"}]`
			req := httptest.NewRequest(http.MethodPost, "/orders/1001/responses", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()

			h.SetupRouter().ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}

			got := decodeResult(t, res)
			if got.Result != tt.wantResult {
				t.Fatalf("result = %q, want %q", got.Result, tt.wantResult)
			}
			if got.Message == "" {
				t.Fatalf("message must not be empty")
			}

			if svc.submitName != "1001" {
				t.Fatalf("order name = %q, want 1001", svc.submitName)
			}
			if len(svc.submitDecisions) != 1 || svc.submitDecisions[0].Status != model.LineItemStatusAccepted {
				t.Fatalf("unexpected decisions: %+v", svc.submitDecisions)
			}
		})
	}
}

func TestSubmitResponse_MalformedBody(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/orders/1001/responses", bytes.NewBufferString(`{"not":"an array"}`))
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if svc.submitName != "" {
		t.Fatalf("service must not be called")
	}
}

func TestGetProposals_QueryOverridesPath(t *testing.T) {
	svc := &stubService{
		proposalsView: service.ProposalView{
			Result:    model.ResultSuccess,
			Remaining: 5*time.Hour + 30*time.Minute,
			Records: []model.ReplacementRecord{{
				ID:                     "r1",
				OrderName:              "1002",
				OriginalProductRef:     "gid://shopify/LineItem/1",
				ReplacementProductRef:  "custom_x",
				TotalPrice:             decimal.NewFromInt(100),
				TotalReplacementAmount: decimal.NewFromInt(120),
				Balance:                decimal.NewFromInt(-20),
				OrderStatus:            model.OrderStatusPending,
			}},
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/1001/proposals?orderId=1002", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.proposalsName != "1002" {
		t.Fatalf("order name = %q, want 1002", svc.proposalsName)
	}

	var body proposalsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RemainingText != "5h 30m 0s" || body.Remaining != 19800 {
		t.Fatalf("unexpected remaining: %d %q", body.Remaining, body.RemainingText)
	}
	if len(body.Items) != 1 || body.Items[0].Balance != "-20.00" || !body.Items[0].Custom {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
}

func TestGetProposals_Expired(t *testing.T) {
	svc := &stubService{proposalsView: service.ProposalView{Result: model.ResultExpired}}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/orders/1001/proposals", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusGone)
	}
	if got := decodeResult(t, res); got.Message != model.ResultExpired.Message() {
		t.Fatalf("message = %q", got.Message)
	}
}

func staffRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	token, err := h.authMiddleware.IssueToken("maria", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestStaffRoutes_RequireToken(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodGet, "/api/staff/batches", nil)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestBuildProposal(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "created", wantStatus: http.StatusCreated},
		{name: "empty", err: service.ErrEmptyProposal, wantStatus: http.StatusUnprocessableEntity},
		{name: "exists", err: service.ErrProposalExists, wantStatus: http.StatusConflict},
		{name: "order missing", err: fmt.Errorf("%w: %w", service.ErrOrderLookup, shopify.ErrOrderNotFound), wantStatus: http.StatusNotFound},
		{name: "platform down", err: fmt.Errorf("%w: timeout", service.ErrOrderLookup), wantStatus: http.StatusBadGateway},
		{name: "email failed", err: fmt.Errorf("%w: 401", service.ErrNotificationFailed), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				buildErr: tt.err,
				buildResp: model.Proposal{
					OrderID:   "gid://shopify/Order/1",
					OrderName: "1001",
					Records:   []model.ReplacementRecord{{ID: "r1"}},
				},
			}
			h := newTestHandler(t, svc)

			body := []byte(`{"replacements":{"gid://shopify/LineItem/1":{"productId":"9","title":"Papaya","price":"60.00"}}}`)
			rec := httptest.NewRecorder()
			h.SetupRouter().ServeHTTP(rec, staffRequest(t, h, http.MethodPost, "/api/staff/orders/1/proposals", body))

			res := rec.Result()
			defer res.Body.Close()
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}

			sel, ok := svc.buildSelections["gid://shopify/LineItem/1"]
			if !ok || !sel.Price.Equal(decimal.NewFromInt(60)) {
				t.Fatalf("unexpected selections: %+v", svc.buildSelections)
			}
		})
	}
}

func TestReconcile_Outcomes(t *testing.T) {
	svc := &stubService{reconcileResp: []model.LineItemOutcome{
		{RecordID: "r1", Status: model.OutcomeConfirmed},
		{RecordID: "r2", Status: model.OutcomeFailed, Step: model.StepResolveVariant, Error: "no sellable variant"},
	}}
	h := newTestHandler(t, svc)

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, staffRequest(t, h, http.MethodPost, "/api/staff/orders/1/reconcile", nil))

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var outcomes []model.LineItemOutcome
	if err := json.NewDecoder(res.Body).Decode(&outcomes); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(outcomes) != 2 || outcomes[1].Step != model.StepResolveVariant {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
}

func TestReconcile_Errors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{err: service.ErrBatchNotFound, wantStatus: http.StatusNotFound},
		{err: service.ErrBatchNotAccepted, wantStatus: http.StatusConflict},
		{err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestHandler(t, &stubService{reconcileErr: tt.err})

			rec := httptest.NewRecorder()
			h.SetupRouter().ServeHTTP(rec, staffRequest(t, h, http.MethodPost, "/api/staff/orders/1/reconcile", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestListBatches(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, staffRequest(t, h, http.MethodGet, "/api/staff/batches?status=Pending", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	h = newTestHandler(t, &stubService{batchesResp: []model.BatchSummary{{OrderID: "gid://shopify/Order/1", OrderName: "1001", Items: 2}}})

	rec = httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, staffRequest(t, h, http.MethodGet, "/api/staff/batches", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
}
