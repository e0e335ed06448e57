// Package fraud はテナントからの不正報告の受付を提供する。
// 報告は管理者の判断材料であり、掲載の状態は変更しない。
package fraud

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

// Service は不正報告のサービス層。
type Service struct {
	reports   repository.FraudReportRepository
	listings  repository.ListingRepository
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	reports repository.FraudReportRepository,
	listings repository.ListingRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reports:   reports,
		listings:  listings,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit は不正報告を登録する。理由は必須、詳細は任意。
func (s *Service) Submit(ctx context.Context, listingID, reporterID, reason, details string) (*model.FraudReport, error) {
	reason = s.sanitizer.Sanitize(reason)
	if reason == "" {
		return nil, model.NewMissingReasonError("report")
	}
	if strings.TrimSpace(reporterID) == "" {
		return nil, model.NewValidationError("報告者が特定できません。")
	}

	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	report := &model.FraudReport{
		ID:         uuid.New().String(),
		ListingID:  listingID,
		ReporterID: reporterID,
		Reason:     reason,
		Details:    s.sanitizer.Sanitize(details),
		CreatedAt:  s.now(),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("不正報告の登録に失敗しました: %w", err)
	}

	s.metrics.RecordFraudReport()
	s.logger.Info("fraud report submitted",
		slog.String("listing_id", listingID),
		slog.String("report_id", report.ID),
		slog.String("status", string(listing.LifecycleStatus)),
	)
	return report, nil
}

// ListByListing は掲載の不正報告を作成順で返す。
func (s *Service) ListByListing(ctx context.Context, listingID string) ([]model.FraudReport, error) {
	reports, err := s.reports.ListByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("不正報告の取得に失敗しました: %w", err)
	}
	return reports, nil
}

// ListAll は全不正報告を新しい順に返す。
func (s *Service) ListAll(ctx context.Context) ([]model.FraudReport, error) {
	reports, err := s.reports.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("不正報告一覧の取得に失敗しました: %w", err)
	}
	return reports, nil
}
