package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/model"
)

// FraudReportServiceInterface は不正報告ハンドラーが必要とするサービスインターフェース。
type FraudReportServiceInterface interface {
	Submit(ctx context.Context, listingID, reporterID, reason, details string) (*model.FraudReport, error)
	ListByListing(ctx context.Context, listingID string) ([]model.FraudReport, error)
	ListAll(ctx context.Context) ([]model.FraudReport, error)
}

// FraudHandler は不正報告のHTTPハンドラー。
type FraudHandler struct {
	service FraudReportServiceInterface
	logger  *slog.Logger
}

// NewFraudHandler はFraudHandlerを生成する。
func NewFraudHandler(service FraudReportServiceInterface, logger *slog.Logger) *FraudHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FraudHandler{service: service, logger: logger}
}

// Submit はテナントからの不正報告を受け付ける。
// POST /api/listings/{id}/fraud-reports
func (h *FraudHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req fraudReportRequest
	if err := decodeRequest(w, r, &req); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	report, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Reason, req.Details)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFraudReportResponses([]model.FraudReport{*report})[0])
}

// ListByListing は掲載の不正報告一覧を返す。
// GET /api/admin/listings/{id}/fraud-reports
func (h *FraudHandler) ListByListing(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.ListByListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fraud_reports": toFraudReportResponses(reports)})
}

// ListAll は全掲載の不正報告を新しい順に返す。
// GET /api/admin/fraud-reports
func (h *FraudHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.ListAll(r.Context())
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fraud_reports": toFraudReportResponses(reports),
		"total":         len(reports),
	})
}
