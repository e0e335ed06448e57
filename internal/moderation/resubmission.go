package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/repository"
)

// NewResubmissionEntry は掲載の現在の状態と理由から次の再提出履歴エントリを作る。
// 状態をWAITING_REVIEWに戻す前に呼ぶこと。
func NewResubmissionEntry(l *model.Listing, at time.Time) model.ResubmissionEntry {
	return model.ResubmissionEntry{
		Attempt:       len(l.ResubmissionHistory) + 1,
		Type:          l.LifecycleStatus,
		Reason:        l.CurrentReason(),
		ResubmittedAt: at,
	}
}

// Tracker は再提出履歴の記録のみを行う。状態は変更しない。
// 状態のリセットまで含めた再提出はService.Resubmitを使う。
type Tracker struct {
	repo   repository.ListingRepository
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption はTrackerの設定を変更する。
type TrackerOption func(*Tracker)

// WithTrackerClock は履歴エントリの記録時刻の取得関数を差し替える。
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker はTrackerを生成する。
func NewTracker(repo repository.ListingRepository, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordResubmission は現在のFLAGGED/BLOCKEDの状態と理由を履歴に追記し、追記後の履歴件数を返す。
// 他の状態ではINVALID_TRANSITIONを返す。
func (t *Tracker) RecordResubmission(ctx context.Context, listingID string) (int, error) {
	current, err := t.repo.FindByID(ctx, listingID)
	if err != nil {
		return 0, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	if current == nil {
		return 0, model.NewListingNotFoundError(listingID)
	}

	switch current.LifecycleStatus {
	case model.StatusFlagged, model.StatusBlocked:
	default:
		return 0, model.NewInvalidTransitionError(current.LifecycleStatus, "resubmit")
	}

	now := t.now()
	entry := NewResubmissionEntry(current, now)
	next := current.Clone()
	next.UpdatedAt = now

	if err := t.repo.UpdateLifecycle(ctx, next, current.Version, &entry); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return 0, err
		}
		return 0, fmt.Errorf("再提出履歴の記録に失敗しました: %w", err)
	}

	t.logger.Info("resubmission recorded",
		slog.String("listing_id", listingID),
		slog.Int("attempt", entry.Attempt),
		slog.String("type", string(entry.Type)),
	)
	return entry.Attempt, nil
}
