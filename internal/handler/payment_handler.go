package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/moderation"
)

// PaymentConfirmer は支払い完了を掲載に反映する操作。
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, c moderation.PaymentConfirmation) (*model.Listing, error)
}

// PaymentHandler は決済Webhookのハンドラー。
// 共有シークレットの検証はルーター側のミドルウェアで行う。
type PaymentHandler struct {
	service PaymentConfirmer
	logger  *slog.Logger
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentConfirmer, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{service: service, logger: logger}
}

// Confirm は支払い完了通知を処理する。
// POST /api/webhooks/payment
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := decodeRequest(w, r, &req); err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}

	c := moderation.PaymentConfirmation{
		ListingID:     req.ListingID,
		Amount:        req.Amount,
		ProviderName:  req.ProviderName,
		ProviderTxnID: req.ProviderTxnID,
	}
	if req.PaidAt != nil {
		c.PaidAt = *req.PaidAt
	}

	l, err := h.service.ConfirmPayment(r.Context(), c)
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l, model.RoleSystem))
}
