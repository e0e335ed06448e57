package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/listingd/internal/dashboard"
	"github.com/hitoshi/listingd/internal/lifecycle"
	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/moderation"
	"github.com/hitoshi/listingd/internal/sanitizelog"
)

// ModerationServiceInterface は掲載ハンドラーが必要とするライフサイクル操作。
// moderation.Serviceが実装する。
type ModerationServiceInterface interface {
	Create(ctx context.Context, in moderation.NewListing) (*model.Listing, error)
	Get(ctx context.Context, listingID string) (*model.Listing, error)
	ListAll(ctx context.Context) ([]*model.Listing, error)
	ListByLandlord(ctx context.Context, landlordID string) ([]*model.Listing, error)
	Transition(ctx context.Context, listingID string, actor model.Actor, action string, reason *string) (*model.Listing, error)
	Hide(ctx context.Context, listingID, landlordID string) (*model.Listing, error)
	Unhide(ctx context.Context, listingID, landlordID string) (*model.Listing, error)
	Resubmit(ctx context.Context, listingID, landlordID string) (*model.Listing, error)
}

// SanitizeLogServiceInterface はサニタイズログの追記操作。
type SanitizeLogServiceInterface interface {
	Append(ctx context.Context, listingID string, target model.SanitizeTarget, e sanitizelog.Entry) (*model.SanitizeLog, error)
}

// ListingHandlerConfig は掲載ハンドラーの設定。
type ListingHandlerConfig struct {
	HistoryGracePeriod time.Duration
	Now                func() time.Time
}

// ListingHandler は管理者・家主向けの掲載APIハンドラー。
type ListingHandler struct {
	service     ModerationServiceInterface
	sanitizeLog SanitizeLogServiceInterface
	logger      *slog.Logger
	grace       time.Duration
	now         func() time.Time
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service ModerationServiceInterface, sanitizeLog SanitizeLogServiceInterface, logger *slog.Logger, config ListingHandlerConfig) *ListingHandler {
	if config.HistoryGracePeriod <= 0 {
		config.HistoryGracePeriod = dashboard.DefaultHistoryGracePeriod
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingHandler{
		service:     service,
		sanitizeLog: sanitizeLog,
		logger:      logger,
		grace:       config.HistoryGracePeriod,
		now:         config.Now,
	}
}

func (h *ListingHandler) fail(w http.ResponseWriter, err error) {
	middleware.WriteError(w, h.logger, err)
}

// ListStatuses はステータスのメタデータ表を返す。
// GET /api/listing-statuses
func (h *ListingHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"statuses": lifecycle.StatusTable()})
}

// --- 管理者 ---

// AdminList はWAITING_PAYMENT以外の全掲載を返す。
// GET /api/admin/listings
func (h *ListingHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": toListingResponses(listings, model.RoleAdmin)})
}

// AdminDashboard は管理者向けの分類と集計を返す。
// GET /api/admin/listings/dashboard
func (h *ListingHandler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	summary := dashboard.Summarize(listings, h.now(), h.grace)
	writeJSON(w, http.StatusOK, toDashboardResponse(summary, model.RoleAdmin))
}

// AdminGet は監査サブコレクションを含む掲載詳細を返す。
// GET /api/admin/listings/{id}
func (h *ListingHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	hasScam := sanitizelog.HasScamIndicator(l.UnitSanitizeLogs, l.PropertySanitizeLogs)
	writeJSON(w, http.StatusOK, toListingDetailResponse(l, model.RoleAdmin, hasScam))
}

// AdminTransition はapprove/flag/blockを実行する。
// POST /api/admin/listings/{id}/transition
func (h *ListingHandler) AdminTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	l, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), actor, req.Action, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l, actor.Role))
}

// AdminAppendSanitizeLog はサニタイズログを追記する。
// POST /api/admin/listings/{id}/sanitize-logs
func (h *ListingHandler) AdminAppendSanitizeLog(w http.ResponseWriter, r *http.Request) {
	var req sanitizeLogRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	target, err := sanitizelog.ParseTarget(req.Target)
	if err != nil {
		h.fail(w, err)
		return
	}

	entry, err := h.sanitizeLog.Append(r.Context(), chi.URLParam(r, "id"), target, sanitizelog.Entry{
		Part:              req.Part,
		Reason:            req.Reason,
		Action:            req.Action,
		DataUsed:          req.DataUsed,
		IsScammingPattern: req.IsScammingPattern,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSanitizeLogResponses([]model.SanitizeLog{*entry})[0])
}

// --- 家主 ---

// LandlordList は家主自身の掲載を分類・集計付きで返す。
// GET /api/landlord/listings
func (h *ListingHandler) LandlordList(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	listings, err := h.service.ListByLandlord(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	summary := dashboard.Summarize(listings, h.now(), h.grace)
	writeJSON(w, http.StatusOK, toDashboardResponse(summary, model.RoleLandlord))
}

// LandlordCreate は支払い待ちの掲載を作成する。
// POST /api/landlord/listings
func (h *ListingHandler) LandlordCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createListingRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}

	l, err := h.service.Create(r.Context(), moderation.NewListing{
		LandlordID: actor.ID,
		UnitID:     req.UnitID,
		PropertyID: req.PropertyID,
		IsFeatured: req.IsFeatured,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(l, model.RoleLandlord))
}

// ownerAction は家主の所有者操作（hide/unhide/resubmit）のハンドラーを生成する。
func (h *ListingHandler) ownerAction(op func(ctx context.Context, listingID, landlordID string) (*model.Listing, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		l, err := op(r.Context(), chi.URLParam(r, "id"), actor.ID)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toListingResponse(l, model.RoleLandlord))
	}
}

// LandlordHide は掲載を非表示にする。
// POST /api/landlord/listings/{id}/hide
func (h *ListingHandler) LandlordHide(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(h.service.Hide)(w, r)
}

// LandlordUnhide は非表示の掲載を再表示する。
// POST /api/landlord/listings/{id}/unhide
func (h *ListingHandler) LandlordUnhide(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(h.service.Unhide)(w, r)
}

// LandlordResubmit はFLAGGED/BLOCKEDの掲載を再審査に出す。
// POST /api/landlord/listings/{id}/resubmit
func (h *ListingHandler) LandlordResubmit(w http.ResponseWriter, r *http.Request) {
	h.ownerAction(h.service.Resubmit)(w, r)
}
