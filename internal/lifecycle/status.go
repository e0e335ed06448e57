package lifecycle

import (
	"time"

	"github.com/hitoshi/listingd/internal/model"
)

// StatusMeta はステータスごとの表示用メタデータ。
// 管理画面・家主画面で同じ表を使うため、ここを唯一の定義元とする。
type StatusMeta struct {
	Status         model.LifecycleStatus `json:"status"`
	Label          string                `json:"label"`
	Color          string                `json:"color"`
	TimestampLabel string                `json:"timestamp_label"`
	IsTerminal     bool                  `json:"is_terminal"`
	IsPublic       bool                  `json:"is_public"`
}

var statusTable = map[model.LifecycleStatus]StatusMeta{
	model.StatusWaitingPayment: {Label: "Waiting Payment", Color: "blue", TimestampLabel: "Created At"},
	model.StatusWaitingReview:  {Label: "Waiting Review", Color: "purple", TimestampLabel: "Waiting Review Since"},
	model.StatusVisible:        {Label: "Visible", Color: "emerald", TimestampLabel: "Visible At", IsPublic: true},
	model.StatusHidden:         {Label: "Hidden", Color: "teal", TimestampLabel: "Hidden At"},
	model.StatusFlagged:        {Label: "Flagged", Color: "amber", TimestampLabel: "Flagged At"},
	model.StatusBlocked:        {Label: "Blocked", Color: "red", TimestampLabel: "Blocked At"},
	model.StatusExpired:        {Label: "Expired", Color: "gray", TimestampLabel: "Expired At", IsTerminal: true},
}

// StatusInfo は指定ステータスのメタデータを返す。
// 未知のステータスにはgrayのフォールバックを返す。
func StatusInfo(status model.LifecycleStatus) StatusMeta {
	meta, ok := statusTable[status]
	if !ok {
		return StatusMeta{Status: status, Label: string(status), Color: "gray", TimestampLabel: "Created At"}
	}
	meta.Status = status
	return meta
}

// StatusTable は全ステータスのメタデータを表示順で返す。
func StatusTable() []StatusMeta {
	metas := make([]StatusMeta, 0, len(model.AllLifecycleStatuses))
	for _, s := range model.AllLifecycleStatuses {
		metas = append(metas, StatusInfo(s))
	}
	return metas
}

// TimestampFor は現在のステータスに対応する表示用日時を返す。
// WAITING_REVIEWは支払日、EXPIREDは予定失効日時を使う。
func TimestampFor(l *model.Listing) *time.Time {
	switch l.LifecycleStatus {
	case model.StatusWaitingReview:
		return l.PaymentDate
	case model.StatusVisible:
		return l.VisibleAt
	case model.StatusHidden:
		return l.HiddenAt
	case model.StatusFlagged:
		return l.FlaggedAt
	case model.StatusBlocked:
		return l.BlockedAt
	case model.StatusExpired:
		return l.ExpiresAt
	default:
		created := l.CreatedAt
		return &created
	}
}
