// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LifecycleStatus は掲載のライフサイクル状態を表す。
// 値はAllLifecycleStatusesのいずれかであり、空文字列や未知の値は存在しない。
type LifecycleStatus string

const (
	// StatusWaitingPayment は支払い待ち（初期状態）。
	StatusWaitingPayment LifecycleStatus = "WAITING_PAYMENT"
	// StatusWaitingReview は支払い完了後の審査待ち。
	StatusWaitingReview LifecycleStatus = "WAITING_REVIEW"
	// StatusVisible は公開中。
	StatusVisible LifecycleStatus = "VISIBLE"
	// StatusHidden は家主による一時非表示。
	StatusHidden LifecycleStatus = "HIDDEN"
	// StatusFlagged は管理者による要修正フラグ。
	StatusFlagged LifecycleStatus = "FLAGGED"
	// StatusBlocked は管理者によるブロック。
	StatusBlocked LifecycleStatus = "BLOCKED"
	// StatusExpired は掲載期限切れ（終端状態）。
	StatusExpired LifecycleStatus = "EXPIRED"
)

// AllLifecycleStatuses は全ライフサイクル状態を表示順で返す。
var AllLifecycleStatuses = []LifecycleStatus{
	StatusWaitingPayment,
	StatusWaitingReview,
	StatusVisible,
	StatusHidden,
	StatusFlagged,
	StatusBlocked,
	StatusExpired,
}

// Valid はステータスが定義済みの値かどうかを返す。
func (s LifecycleStatus) Valid() bool {
	for _, v := range AllLifecycleStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseLifecycleStatus は外部入力の文字列をLifecycleStatusに変換する。
// 大文字小文字と前後の空白は無視する。未知の値はエラーを返す。
func ParseLifecycleStatus(raw string) (LifecycleStatus, error) {
	s := LifecycleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown lifecycle status: %q", raw)
	}
	return s, nil
}

// Listing は賃貸ユニットの掲載を表す。
// ユニット・物件レコードとは独立したエンティティで、状態と監査用のサブコレクションを保持する。
type Listing struct {
	ID              string
	LandlordID      string
	UnitID          string
	PropertyID      string
	LifecycleStatus LifecycleStatus
	IsFeatured      bool

	// 支払い情報（決済イベントから受け取る参考情報）
	PaymentAmount decimal.Decimal
	ProviderName  string
	ProviderTxnID string

	// ライフサイクルのタイムスタンプ。nilはその状態を一度も通過していないことを表す。
	PaymentDate *time.Time
	VisibleAt   *time.Time
	HiddenAt    *time.Time
	FlaggedAt   *time.Time
	BlockedAt   *time.Time
	ExpiresAt   *time.Time

	// 現在FLAGGED/BLOCKEDにある間のみ値を持つ
	FlaggedReason string
	BlockedReason string

	// 最後にapprove/flag/blockを行った管理者
	ReviewedBy string
	ReviewedAt *time.Time

	// 追記専用の監査コレクション
	ResubmissionHistory  []ResubmissionEntry
	UnitSanitizeLogs     []SanitizeLog
	PropertySanitizeLogs []SanitizeLog
	FraudReports         []FraudReport

	// Version は楽観的排他制御用のマーカー。状態の書き込みごとに1増える。
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurrentReason は現在の状態に対応する理由（FLAGGED/BLOCKEDの場合のみ）を返す。
func (l *Listing) CurrentReason() string {
	switch l.LifecycleStatus {
	case StatusFlagged:
		return l.FlaggedReason
	case StatusBlocked:
		return l.BlockedReason
	default:
		return ""
	}
}

// Clone はサブコレクションを含む掲載のコピーを返す。
// ガード評価前の状態を保持し、失敗時に変更が残らないようにするために使う。
func (l *Listing) Clone() *Listing {
	c := *l
	c.PaymentDate = cloneTime(l.PaymentDate)
	c.VisibleAt = cloneTime(l.VisibleAt)
	c.HiddenAt = cloneTime(l.HiddenAt)
	c.FlaggedAt = cloneTime(l.FlaggedAt)
	c.BlockedAt = cloneTime(l.BlockedAt)
	c.ExpiresAt = cloneTime(l.ExpiresAt)
	c.ReviewedAt = cloneTime(l.ReviewedAt)
	c.ResubmissionHistory = append([]ResubmissionEntry(nil), l.ResubmissionHistory...)
	c.UnitSanitizeLogs = append([]SanitizeLog(nil), l.UnitSanitizeLogs...)
	c.PropertySanitizeLogs = append([]SanitizeLog(nil), l.PropertySanitizeLogs...)
	c.FraudReports = append([]FraudReport(nil), l.FraudReports...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ResubmissionEntry は再提出履歴の1エントリ。書き込み後は変更されない。
type ResubmissionEntry struct {
	Attempt       int             // 1始まりの再提出回数
	Type          LifecycleStatus // 再提出時点の状態（FLAGGED または BLOCKED）
	Reason        string
	ResubmittedAt time.Time
}

// SanitizeTarget はサニタイズログの対象（ユニットまたは物件）を表す。
type SanitizeTarget string

const (
	// SanitizeTargetUnit はユニット情報に対するログ。
	SanitizeTargetUnit SanitizeTarget = "UNIT"
	// SanitizeTargetProperty は物件情報に対するログ。
	SanitizeTargetProperty SanitizeTarget = "PROPERTY"
)

// SanitizeLog は外部のコンテンツモデレーション処理が除去した内容の記録。
type SanitizeLog struct {
	ID                string
	ListingID         string
	Target            SanitizeTarget
	Part              string // 対象フィールド（description, title 等）
	Reason            string
	Action            string // removed, masked 等
	DataUsed          string
	IsScammingPattern bool
	CreatedAt         time.Time
}

// FraudReport はテナントから送信された不正報告。管理者の判断材料であり、自動で状態遷移は起こさない。
type FraudReport struct {
	ID         string
	ListingID  string
	ReporterID string
	Reason     string
	Details    string
	CreatedAt  time.Time
}
