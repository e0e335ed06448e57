package handler

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/listingd/internal/dashboard"
	"github.com/hitoshi/listingd/internal/lifecycle"
	"github.com/hitoshi/listingd/internal/model"
)

// --- リクエスト ---

// transitionRequest は管理者のモデレーション操作。reasonは省略可能。
type transitionRequest struct {
	Action string  `json:"action" validate:"required"`
	Reason *string `json:"reason"`
}

func (r *transitionRequest) Validate() error { return validateRequest(r) }

// createListingRequest は家主による掲載作成。
type createListingRequest struct {
	UnitID     string `json:"unit_id" validate:"required,max=64"`
	PropertyID string `json:"property_id" validate:"required,max=64"`
	IsFeatured bool   `json:"is_featured"`
}

func (r *createListingRequest) Validate() error { return validateRequest(r) }

// sanitizeLogRequest は外部のコンテンツモデレーション処理からのログ追記。
type sanitizeLogRequest struct {
	Target            string `json:"target" validate:"required"`
	Part              string `json:"part" validate:"required,max=128"`
	Reason            string `json:"reason" validate:"required,max=128"`
	Action            string `json:"action" validate:"omitempty,max=64"`
	DataUsed          string `json:"data_used" validate:"omitempty,max=4096"`
	IsScammingPattern bool   `json:"is_scamming_pattern"`
}

func (r *sanitizeLogRequest) Validate() error { return validateRequest(r) }

// fraudReportRequest はテナントからの不正報告。
type fraudReportRequest struct {
	Reason  string `json:"reason" validate:"required,max=256"`
	Details string `json:"details" validate:"omitempty,max=4096"`
}

func (r *fraudReportRequest) Validate() error { return validateRequest(r) }

// paymentWebhookRequest は決済プロバイダーからの支払い完了通知。
type paymentWebhookRequest struct {
	ListingID     string          `json:"listing_id" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount"`
	ProviderName  string          `json:"provider_name" validate:"required,max=64"`
	ProviderTxnID string          `json:"provider_txn_id" validate:"required,max=128"`
	PaidAt        *time.Time      `json:"paid_at"`
}

func (r *paymentWebhookRequest) Validate() error {
	if err := validateRequest(r); err != nil {
		return err
	}
	if r.Amount.IsNegative() {
		return model.NewValidationError("amountは0以上である必要があります。")
	}
	return nil
}

// --- レスポンス ---

type resubmissionResponse struct {
	Attempt       int       `json:"attempt"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason"`
	ResubmittedAt time.Time `json:"resubmitted_at"`
}

type sanitizeLogResponse struct {
	ID                string    `json:"id"`
	Target            string    `json:"target"`
	Part              string    `json:"part"`
	Reason            string    `json:"reason"`
	ReasonLabel       string    `json:"reason_label"`
	Action            string    `json:"action"`
	DataUsed          string    `json:"data_used"`
	IsScammingPattern bool      `json:"is_scamming_pattern"`
	CreatedAt         time.Time `json:"created_at"`
}

type fraudReportResponse struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	ReporterID string    `json:"reporter_id"`
	Reason     string    `json:"reason"`
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

// listingResponse は掲載のAPIレスポンス。表示用メタデータと実行可能な操作を含む。
type listingResponse struct {
	ID               string               `json:"id"`
	LandlordID       string               `json:"landlord_id"`
	UnitID           string               `json:"unit_id"`
	PropertyID       string               `json:"property_id"`
	Status           string               `json:"status"`
	StatusMeta       lifecycle.StatusMeta `json:"status_meta"`
	StatusTimestamp  *time.Time           `json:"status_timestamp"`
	AvailableActions []string             `json:"available_actions"`
	IsFeatured       bool                 `json:"is_featured"`
	PaymentAmount    decimal.Decimal      `json:"payment_amount"`
	ProviderName     string               `json:"provider_name,omitempty"`
	PaymentDate      *time.Time           `json:"payment_date"`
	VisibleAt        *time.Time           `json:"visible_at"`
	HiddenAt         *time.Time           `json:"hidden_at"`
	FlaggedAt        *time.Time           `json:"flagged_at"`
	BlockedAt        *time.Time           `json:"blocked_at"`
	ExpiresAt        *time.Time           `json:"expires_at"`
	FlaggedReason    string               `json:"flagged_reason,omitempty"`
	BlockedReason    string               `json:"blocked_reason,omitempty"`
	ReasonLabel      string               `json:"reason_label,omitempty"`
	ReviewedBy       string               `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time           `json:"reviewed_at"`
	ResubmitCount    int                  `json:"resubmit_count"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// listingDetailResponse は監査サブコレクションを含む管理者向け詳細。
type listingDetailResponse struct {
	listingResponse
	ResubmissionHistory  []resubmissionResponse `json:"resubmission_history"`
	UnitSanitizeLogs     []sanitizeLogResponse  `json:"unit_sanitize_logs"`
	PropertySanitizeLogs []sanitizeLogResponse  `json:"property_sanitize_logs"`
	FraudReports         []fraudReportResponse  `json:"fraud_reports"`
	HasScamIndicator     bool                   `json:"has_scam_indicator"`
}

// dashboardResponse は分類・状態別件数・有効件数。
type dashboardResponse struct {
	Current     []listingResponse `json:"current"`
	History     []listingResponse `json:"history"`
	Counts      map[string]int    `json:"counts"`
	ActiveCount int               `json:"active_count"`
}

func toListingResponse(l *model.Listing, role model.Role) listingResponse {
	var reasonLabel string
	if reason := l.CurrentReason(); reason != "" {
		reasonLabel = lifecycle.ReasonLabel(reason)
	}
	return listingResponse{
		ID:              l.ID,
		LandlordID:      l.LandlordID,
		UnitID:          l.UnitID,
		PropertyID:      l.PropertyID,
		Status:          string(l.LifecycleStatus),
		StatusMeta:      lifecycle.StatusInfo(l.LifecycleStatus),
		StatusTimestamp: lifecycle.TimestampFor(l),
		AvailableActions: lo.Map(lifecycle.AvailableActions(l.LifecycleStatus, role), func(a lifecycle.Action, _ int) string {
			return string(a)
		}),
		IsFeatured:    l.IsFeatured,
		PaymentAmount: l.PaymentAmount,
		ProviderName:  l.ProviderName,
		PaymentDate:   l.PaymentDate,
		VisibleAt:     l.VisibleAt,
		HiddenAt:      l.HiddenAt,
		FlaggedAt:     l.FlaggedAt,
		BlockedAt:     l.BlockedAt,
		ExpiresAt:     l.ExpiresAt,
		FlaggedReason: l.FlaggedReason,
		BlockedReason: l.BlockedReason,
		ReasonLabel:   reasonLabel,
		ReviewedBy:    l.ReviewedBy,
		ReviewedAt:    l.ReviewedAt,
		ResubmitCount: len(l.ResubmissionHistory),
		Version:       l.Version,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func toListingResponses(listings []*model.Listing, role model.Role) []listingResponse {
	return lo.Map(listings, func(l *model.Listing, _ int) listingResponse {
		return toListingResponse(l, role)
	})
}

func toSanitizeLogResponses(logs []model.SanitizeLog) []sanitizeLogResponse {
	return lo.Map(logs, func(s model.SanitizeLog, _ int) sanitizeLogResponse {
		return sanitizeLogResponse{
			ID:                s.ID,
			Target:            string(s.Target),
			Part:              s.Part,
			Reason:            s.Reason,
			ReasonLabel:       lifecycle.ReasonLabel(s.Reason),
			Action:            s.Action,
			DataUsed:          s.DataUsed,
			IsScammingPattern: s.IsScammingPattern,
			CreatedAt:         s.CreatedAt,
		}
	})
}

func toFraudReportResponses(reports []model.FraudReport) []fraudReportResponse {
	return lo.Map(reports, func(f model.FraudReport, _ int) fraudReportResponse {
		return fraudReportResponse{
			ID:         f.ID,
			ListingID:  f.ListingID,
			ReporterID: f.ReporterID,
			Reason:     f.Reason,
			Details:    f.Details,
			CreatedAt:  f.CreatedAt,
		}
	})
}

func toListingDetailResponse(l *model.Listing, role model.Role, hasScam bool) listingDetailResponse {
	return listingDetailResponse{
		listingResponse: toListingResponse(l, role),
		ResubmissionHistory: lo.Map(l.ResubmissionHistory, func(e model.ResubmissionEntry, _ int) resubmissionResponse {
			return resubmissionResponse{
				Attempt:       e.Attempt,
				Type:          string(e.Type),
				Reason:        e.Reason,
				ResubmittedAt: e.ResubmittedAt,
			}
		}),
		UnitSanitizeLogs:     toSanitizeLogResponses(l.UnitSanitizeLogs),
		PropertySanitizeLogs: toSanitizeLogResponses(l.PropertySanitizeLogs),
		FraudReports:         toFraudReportResponses(l.FraudReports),
		HasScamIndicator:     hasScam,
	}
}

func toDashboardResponse(s dashboard.Summary, role model.Role) dashboardResponse {
	counts := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		counts[string(status)] = n
	}
	return dashboardResponse{
		Current:     toListingResponses(s.Current, role),
		History:     toListingResponses(s.History, role),
		Counts:      counts,
		ActiveCount: s.ActiveCount,
	}
}
