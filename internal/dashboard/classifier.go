// Package dashboard は管理画面・家主画面向けに掲載を分類・集計する。
// 全て純粋関数で、結果はキャッシュしない。
package dashboard

import (
	"time"

	"github.com/samber/lo"

	"github.com/hitoshi/listingd/internal/model"
)

// DefaultHistoryGracePeriod は終了した掲載を履歴に移すまでの猶予期間（7日）。
const DefaultHistoryGracePeriod = 7 * 24 * time.Hour

// Classification は掲載を現在の一覧と履歴に分けたもの。どちらも入力順を保つ。
type Classification struct {
	Current []*model.Listing
	History []*model.Listing
}

// Summary はダッシュボード表示用の集計結果。
type Summary struct {
	Classification
	Counts      map[model.LifecycleStatus]int
	ActiveCount int
}

// IsHistory は掲載が履歴に属するかを返す。
// EXPIREDまたはBLOCKEDで、作成から猶予期間を超えて経過したものが対象。
func IsHistory(l *model.Listing, now time.Time, grace time.Duration) bool {
	switch l.LifecycleStatus {
	case model.StatusExpired, model.StatusBlocked:
		return l.CreatedAt.Before(now.Add(-grace))
	default:
		return false
	}
}

// Classify はデフォルトの猶予期間で掲載を分類する。
func Classify(listings []*model.Listing, now time.Time) Classification {
	return ClassifyWithGrace(listings, now, DefaultHistoryGracePeriod)
}

// ClassifyWithGrace は指定した猶予期間で掲載を分類する。
// 全ての掲載はCurrentとHistoryのどちらか一方に入る。
func ClassifyWithGrace(listings []*model.Listing, now time.Time, grace time.Duration) Classification {
	history := func(l *model.Listing, _ int) bool { return IsHistory(l, now, grace) }
	return Classification{
		Current: lo.Filter(listings, func(l *model.Listing, i int) bool { return !history(l, i) }),
		History: lo.Filter(listings, history),
	}
}

// CountByStatus は状態ごとの件数を返す。件数0の状態も含め全7状態のキーを持つ。
func CountByStatus(listings []*model.Listing) map[model.LifecycleStatus]int {
	groups := lo.GroupBy(listings, func(l *model.Listing) model.LifecycleStatus { return l.LifecycleStatus })
	counts := make(map[model.LifecycleStatus]int, len(model.AllLifecycleStatuses))
	for _, s := range model.AllLifecycleStatuses {
		counts[s] = len(groups[s])
	}
	return counts
}

// ActiveCount は公開中（VISIBLE）と一時非表示（HIDDEN）の件数の合計を返す。
func ActiveCount(listings []*model.Listing) int {
	return lo.CountBy(listings, func(l *model.Listing) bool {
		return l.LifecycleStatus == model.StatusVisible || l.LifecycleStatus == model.StatusHidden
	})
}

// Summarize は分類・状態別件数・有効件数をまとめて返す。
func Summarize(listings []*model.Listing, now time.Time, grace time.Duration) Summary {
	return Summary{
		Classification: ClassifyWithGrace(listings, now, grace),
		Counts:         CountByStatus(listings),
		ActiveCount:    ActiveCount(listings),
	}
}
