// Package sanitizelog は外部のコンテンツモデレーション処理が除去した内容の記録を扱う。
// 記録は追記のみで、掲載の状態遷移は起こさない。
package sanitizelog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/listingd/internal/metrics"
	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/repository"
	"github.com/hitoshi/listingd/internal/security"
)

// scamReason はサニタイズ理由がこの値の場合に詐欺の兆候とみなす。
const scamReason = "scam"

// Entry は追記するサニタイズログの内容。
type Entry struct {
	Part              string
	Reason            string
	Action            string
	DataUsed          string
	IsScammingPattern bool
}

// Summary は掲載のサニタイズログを対象別にまとめたもの。
type Summary struct {
	UnitLogs         []model.SanitizeLog
	PropertyLogs     []model.SanitizeLog
	HasScamIndicator bool
}

// Recorder はサニタイズログを記録する。
type Recorder struct {
	logs      repository.SanitizeLogRepository
	listings  repository.ListingRepository
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder はRecorderを生成する。
func NewRecorder(
	logs repository.SanitizeLogRepository,
	listings repository.ListingRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Recorder {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		logs:      logs,
		listings:  listings,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// ParseTarget は外部入力の対象文字列（unit|property）を変換する。
func ParseTarget(raw string) (model.SanitizeTarget, error) {
	t := model.SanitizeTarget(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case model.SanitizeTargetUnit, model.SanitizeTargetProperty:
		return t, nil
	}
	return "", model.NewValidationError(fmt.Sprintf("targetはUNITまたはPROPERTYを指定してください（%q）。", raw))
}

// Append はサニタイズログを追記する。テキストはマークアップを除去してから保存する。
// partとreasonが空の場合はVALIDATION_FAILED、掲載が存在しない場合はLISTING_NOT_FOUNDを返す。
func (r *Recorder) Append(ctx context.Context, listingID string, target model.SanitizeTarget, e Entry) (*model.SanitizeLog, error) {
	target, err := ParseTarget(string(target))
	if err != nil {
		return nil, err
	}

	log := &model.SanitizeLog{
		ID:                uuid.New().String(),
		ListingID:         listingID,
		Target:            target,
		Part:              r.sanitizer.Sanitize(e.Part),
		Reason:            r.sanitizer.Sanitize(e.Reason),
		Action:            r.sanitizer.Sanitize(e.Action),
		DataUsed:          r.sanitizer.Sanitize(e.DataUsed),
		IsScammingPattern: e.IsScammingPattern,
		CreatedAt:         r.now(),
	}
	if log.Part == "" {
		return nil, model.NewValidationError("partは必須です。")
	}
	if log.Reason == "" {
		return nil, model.NewValidationError("reasonは必須です。")
	}

	listing, err := r.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	if err := r.logs.Append(ctx, log); err != nil {
		return nil, fmt.Errorf("サニタイズログの記録に失敗しました: %w", err)
	}

	scam := isScamLog(*log)
	r.metrics.RecordSanitizeLog(string(target), scam)
	r.logger.Info("sanitize log recorded",
		slog.String("listing_id", listingID),
		slog.String("target", string(target)),
		slog.String("part", log.Part),
		slog.Bool("scam_indicator", scam),
	)
	return log, nil
}

// Summary は掲載のサニタイズログを対象別に返す。
func (r *Recorder) Summary(ctx context.Context, listingID string) (*Summary, error) {
	logs, err := r.logs.ListByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("サニタイズログの取得に失敗しました: %w", err)
	}
	s := &Summary{}
	for _, l := range logs {
		if l.Target == model.SanitizeTargetProperty {
			s.PropertyLogs = append(s.PropertyLogs, l)
		} else {
			s.UnitLogs = append(s.UnitLogs, l)
		}
	}
	s.HasScamIndicator = HasScamIndicator(s.UnitLogs, s.PropertyLogs)
	return s, nil
}

// HasScamIndicator はいずれかのログが詐欺の兆候を示すかを返す。
// IsScammingPatternが立っているか、理由が"scam"（大文字小文字・前後空白は無視）のログが対象。
func HasScamIndicator(unitLogs, propertyLogs []model.SanitizeLog) bool {
	for _, l := range unitLogs {
		if isScamLog(l) {
			return true
		}
	}
	for _, l := range propertyLogs {
		if isScamLog(l) {
			return true
		}
	}
	return false
}

func isScamLog(l model.SanitizeLog) bool {
	return l.IsScammingPattern || strings.ToLower(strings.TrimSpace(l.Reason)) == scamReason
}
