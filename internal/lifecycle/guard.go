// Package lifecycle は掲載ライフサイクルの状態遷移ガードと状態メタデータを提供する。
//
// 遷移規則はtransitionTableに集約され、Evaluateは副作用を持たない純粋関数として
// 「その操作が合法か」と「どの副作用が必要か」を判定する。
// 実際の書き込み（永続化）はmoderationパッケージが担当する。
package lifecycle

import (
	"strings"
	"time"

	"github.com/hitoshi/listingd/internal/model"
)

// Action は掲載に対する操作を表す。
type Action string

const (
	// ActionPaymentCompleted は決済完了イベント（外部）。
	ActionPaymentCompleted Action = "payment-completed"
	// ActionApprove は管理者による承認。
	ActionApprove Action = "approve"
	// ActionFlag は管理者による要修正フラグ。
	ActionFlag Action = "flag"
	// ActionBlock は管理者によるブロック。
	ActionBlock Action = "block"
	// ActionHide は家主による非表示。
	ActionHide Action = "hide"
	// ActionUnhide は家主による再表示。
	ActionUnhide Action = "unhide"
	// ActionResubmit は家主によるFLAGGED/BLOCKED掲載の再提出。
	ActionResubmit Action = "resubmit"
	// ActionExpire は期限切れスケジューラによる失効。
	ActionExpire Action = "expire"
)

// reasonPolicy は操作が理由文字列をどう扱うかを表す。
type reasonPolicy int

const (
	reasonIgnored reasonPolicy = iota
	reasonRequired
	reasonForbidden
)

// rule は1つの操作に対する遷移規則。
type rule struct {
	from      []model.LifecycleStatus
	to        model.LifecycleStatus
	role      model.Role
	ownerOnly bool
	reason    reasonPolicy
}

// transitionTable は状態遷移表。EXPIREDを遷移元に持つ規則は存在しない。
var transitionTable = map[Action]rule{
	ActionPaymentCompleted: {
		from: []model.LifecycleStatus{model.StatusWaitingPayment},
		to:   model.StatusWaitingReview,
		role: model.RoleSystem,
	},
	ActionApprove: {
		from:   []model.LifecycleStatus{model.StatusWaitingReview, model.StatusFlagged, model.StatusBlocked},
		to:     model.StatusVisible,
		role:   model.RoleAdmin,
		reason: reasonForbidden,
	},
	ActionFlag: {
		from: []model.LifecycleStatus{
			model.StatusWaitingReview, model.StatusVisible, model.StatusHidden,
			model.StatusFlagged, model.StatusBlocked,
		},
		to:     model.StatusFlagged,
		role:   model.RoleAdmin,
		reason: reasonRequired,
	},
	ActionBlock: {
		from: []model.LifecycleStatus{
			model.StatusWaitingReview, model.StatusVisible, model.StatusHidden,
			model.StatusFlagged,
		},
		to:     model.StatusBlocked,
		role:   model.RoleAdmin,
		reason: reasonRequired,
	},
	ActionHide: {
		from:      []model.LifecycleStatus{model.StatusVisible},
		to:        model.StatusHidden,
		role:      model.RoleLandlord,
		ownerOnly: true,
	},
	ActionUnhide: {
		from:      []model.LifecycleStatus{model.StatusHidden},
		to:        model.StatusVisible,
		role:      model.RoleLandlord,
		ownerOnly: true,
	},
	ActionResubmit: {
		from:      []model.LifecycleStatus{model.StatusFlagged, model.StatusBlocked},
		to:        model.StatusWaitingReview,
		role:      model.RoleLandlord,
		ownerOnly: true,
	},
	ActionExpire: {
		from: []model.LifecycleStatus{model.StatusVisible, model.StatusHidden},
		to:   model.StatusExpired,
		role: model.RoleSystem,
	},
}

// moderationActions は外部APIで受け付ける管理者操作の語彙。
var moderationActions = []Action{ActionApprove, ActionFlag, ActionBlock}

// ParseModerationAction は外部入力の操作文字列（approve|flag|block）をActionに変換する。
func ParseModerationAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	for _, m := range moderationActions {
		if a == m {
			return a, nil
		}
	}
	return "", model.NewInvalidActionError(raw)
}

// IsModeration は管理者によるモデレーション操作かどうかを返す。
func (a Action) IsModeration() bool {
	for _, m := range moderationActions {
		if a == m {
			return true
		}
	}
	return false
}

// Decision はガード評価の結果。Applyで掲載に副作用を適用する。
type Decision struct {
	Action Action
	From   model.LifecycleStatus
	To     model.LifecycleStatus
	Actor  model.Actor
	Reason string
	At     time.Time
}

// Evaluate は現在の掲載状態・操作・操作主体から遷移の可否を判定する。
// 掲載は変更しない。拒否時は*model.APIErrorを返す。
//
// 判定順序（エラー種別を安定させるため固定）:
//  1. EXPIRED は全操作を拒否（INVALID_TRANSITION）
//  2. 未知の操作（INVALID_ACTION）
//  3. 役割・所有者の不一致（FORBIDDEN）
//  4. BLOCKED に対する block（ALREADY_BLOCKED）
//  5. 理由の必須/禁止（MISSING_REASON / REASON_NOT_ALLOWED）
//  6. 遷移元として許可されていない状態（INVALID_TRANSITION）
//  7. expire は now >= expiresAt が必要（INVALID_TRANSITION）
func Evaluate(l *model.Listing, action Action, actor model.Actor, reason string, now time.Time) (Decision, error) {
	if l.LifecycleStatus == model.StatusExpired {
		return Decision{}, model.NewInvalidTransitionError(l.LifecycleStatus, string(action))
	}

	r, ok := transitionTable[action]
	if !ok {
		return Decision{}, model.NewInvalidActionError(string(action))
	}

	if actor.Role != r.role {
		return Decision{}, model.NewForbiddenError(string(action))
	}
	if r.ownerOnly && (actor.ID == "" || actor.ID != l.LandlordID) {
		return Decision{}, model.NewForbiddenError(string(action))
	}

	if action == ActionBlock && l.LifecycleStatus == model.StatusBlocked {
		return Decision{}, model.NewAlreadyBlockedError()
	}

	trimmed := strings.TrimSpace(reason)
	switch r.reason {
	case reasonRequired:
		if trimmed == "" {
			return Decision{}, model.NewMissingReasonError(string(action))
		}
	case reasonForbidden:
		if trimmed != "" {
			return Decision{}, model.NewReasonNotAllowedError(string(action))
		}
	}

	if !containsStatus(r.from, l.LifecycleStatus) {
		return Decision{}, model.NewInvalidTransitionError(l.LifecycleStatus, string(action))
	}

	if action == ActionExpire {
		if l.ExpiresAt == nil || now.Before(*l.ExpiresAt) {
			return Decision{}, model.NewInvalidTransitionError(l.LifecycleStatus, string(action))
		}
	}

	return Decision{
		Action: action,
		From:   l.LifecycleStatus,
		To:     r.to,
		Actor:  actor,
		Reason: trimmed,
		At:     now,
	}, nil
}

// Apply は判定結果の副作用を掲載に適用する。
//   - 遷移先状態のタイムスタンプを現在時刻に設定（再入時は上書き）
//   - 管理者操作ではreviewer/reviewedAtを設定
//   - FLAGGED/BLOCKEDを離れる際はその理由をクリア
//   - 再提出履歴には触れない
func (d Decision) Apply(l *model.Listing) {
	at := d.At
	l.LifecycleStatus = d.To

	switch d.To {
	case model.StatusWaitingReview:
		if d.Action == ActionPaymentCompleted {
			l.PaymentDate = &at
		}
	case model.StatusVisible:
		l.VisibleAt = &at
	case model.StatusHidden:
		l.HiddenAt = &at
	case model.StatusFlagged:
		l.FlaggedAt = &at
		l.FlaggedReason = d.Reason
	case model.StatusBlocked:
		l.BlockedAt = &at
		l.BlockedReason = d.Reason
	case model.StatusExpired:
		// expiresAtは予定された失効時刻を保持する
	}

	if d.To != model.StatusFlagged {
		l.FlaggedReason = ""
	}
	if d.To != model.StatusBlocked {
		l.BlockedReason = ""
	}

	if d.Action.IsModeration() {
		l.ReviewedBy = d.Actor.ID
		l.ReviewedAt = &at
	}
}

// AvailableActions は指定状態・役割で実行し得る操作を返す。
// 理由や所有者・時刻の条件は考慮しない（UIのボタン表示用）。
func AvailableActions(status model.LifecycleStatus, role model.Role) []Action {
	if status == model.StatusExpired {
		return nil
	}
	order := []Action{
		ActionPaymentCompleted, ActionApprove, ActionFlag, ActionBlock,
		ActionHide, ActionUnhide, ActionResubmit, ActionExpire,
	}
	var actions []Action
	for _, a := range order {
		r := transitionTable[a]
		if r.role == role && containsStatus(r.from, status) {
			actions = append(actions, a)
		}
	}
	return actions
}

// UnitAllowsNewListing はユニットに新しい掲載を作成できるかを返す。
// latestはユニットの最新の掲載（なければnil）。
// 掲載がない、EXPIRED、期限切れ、またはBLOCKEDの場合のみ作成できる。
func UnitAllowsNewListing(latest *model.Listing, now time.Time) bool {
	if latest == nil {
		return true
	}
	switch latest.LifecycleStatus {
	case model.StatusExpired, model.StatusBlocked:
		return true
	}
	return latest.ExpiresAt != nil && latest.ExpiresAt.Before(now)
}

func containsStatus(list []model.LifecycleStatus, s model.LifecycleStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
