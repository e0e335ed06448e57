package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/worker/expiry"
)

// ExpiryTrigger は期限切れサイクルを1回実行する。expiry.Schedulerが実装する。
type ExpiryTrigger interface {
	RunOnce(ctx context.Context) (*expiry.CycleResult, error)
}

// ExpiryHandler は管理者による期限切れ処理の手動実行ハンドラー。
type ExpiryHandler struct {
	trigger ExpiryTrigger
	logger  *slog.Logger
}

// NewExpiryHandler はExpiryHandlerを生成する。
func NewExpiryHandler(trigger ExpiryTrigger, logger *slog.Logger) *ExpiryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryHandler{trigger: trigger, logger: logger}
}

type expiryTriggerResponse struct {
	Due     int `json:"due"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Trigger は期限切れサイクルを即時実行し、件数を返す。
// POST /api/admin/listing-expiration/trigger
func (h *ExpiryHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	result, err := h.trigger.RunOnce(r.Context())
	if err != nil {
		middleware.WriteError(w, h.logger, err)
		return
	}
	h.logger.Info("expiry cycle triggered manually",
		slog.String("admin_id", actor.ID),
		slog.Int("expired", result.Expired),
		slog.Int("failed", result.Failed),
	)
	writeJSON(w, http.StatusOK, expiryTriggerResponse{
		Due:     result.Due,
		Expired: result.Expired,
		Skipped: result.Skipped,
		Failed:  result.Failed,
	})
}
