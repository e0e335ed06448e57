package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrInvalidTransition) の形で種別を判定できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// 定義済みエラーコード
const (
	ErrCodeInvalidTransition      = "INVALID_TRANSITION"
	ErrCodeMissingReason          = "MISSING_REASON"
	ErrCodeAlreadyBlocked         = "ALREADY_BLOCKED"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeListingNotFound        = "LISTING_NOT_FOUND"
	ErrCodeUnitNotEligible        = "UNIT_NOT_ELIGIBLE"
	ErrCodeReasonNotAllowed       = "REASON_NOT_ALLOWED"
	ErrCodeInvalidAction          = "INVALID_ACTION"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeValidation             = "VALIDATION_FAILED"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// errors.Is 判定用の番兵値。メッセージは持たず、コードのみで比較される。
var (
	ErrInvalidTransition      = &APIError{Code: ErrCodeInvalidTransition}
	ErrMissingReason          = &APIError{Code: ErrCodeMissingReason}
	ErrAlreadyBlocked         = &APIError{Code: ErrCodeAlreadyBlocked}
	ErrConcurrentModification = &APIError{Code: ErrCodeConcurrentModification}
	ErrListingNotFound        = &APIError{Code: ErrCodeListingNotFound}
	ErrUnitNotEligible        = &APIError{Code: ErrCodeUnitNotEligible}
	ErrReasonNotAllowed       = &APIError{Code: ErrCodeReasonNotAllowed}
	ErrInvalidAction          = &APIError{Code: ErrCodeInvalidAction}
	ErrForbidden              = &APIError{Code: ErrCodeForbidden}
	ErrValidation             = &APIError{Code: ErrCodeValidation}
	ErrUnauthorized           = &APIError{Code: ErrCodeUnauthorized}
)

// ErrorCode はエラーチェーンからAPIErrorのコードを取り出す。
// APIErrorを含まない場合は空文字列を返す。
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// NewInvalidTransitionError は現在の状態から要求された操作が許可されない場合のエラーを生成する。
func NewInvalidTransitionError(from LifecycleStatus, action string) *APIError {
	msg := fmt.Sprintf("現在の状態（%s）では操作「%s」を実行できません。", from, action)
	if from == StatusExpired {
		msg = fmt.Sprintf("掲載は期限切れ（EXPIRED）のため、操作「%s」を実行できません。", action)
	}
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  msg,
		Category: "listing",
		Action:   "掲載の現在の状態を確認してください。",
	}
}

// NewMissingReasonError は理由が必須の操作で理由が空の場合のエラーを生成する。
func NewMissingReasonError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingReason,
		Message:  fmt.Sprintf("操作「%s」には理由の入力が必要です。", action),
		Category: "validation",
		Action:   "空白以外の理由を入力してください。",
	}
}

// NewAlreadyBlockedError は既にブロック済みの掲載をブロックしようとした場合のエラーを生成する。
func NewAlreadyBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyBlocked,
		Message:  "この掲載は既にブロックされています。",
		Category: "listing",
		Action:   "掲載の現在の状態を確認してください。",
	}
}

// NewConcurrentModificationError は楽観的排他制御の競合エラーを生成する。
func NewConcurrentModificationError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeConcurrentModification,
		Message:  fmt.Sprintf("掲載が他の操作によって更新されました: %s", listingID),
		Category: "listing",
		Action:   "最新の状態を再取得してから、もう一度お試しください。",
	}
}

// NewListingNotFoundError は掲載未検出エラーを生成する。
func NewListingNotFoundError(listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定された掲載が見つかりません: %s", listingID),
		Category: "listing",
		Action:   "掲載IDを確認してください。",
	}
}

// NewUnitNotEligibleError はユニットに有効な掲載が残っている場合のエラーを生成する。
func NewUnitNotEligibleError(unitID string, status LifecycleStatus) *APIError {
	return &APIError{
		Code:     ErrCodeUnitNotEligible,
		Message:  fmt.Sprintf("ユニット %s には%sの掲載があるため、新しい掲載を作成できません。", unitID, status),
		Category: "listing",
		Action:   "既存の掲載が失効またはブロックされてから再度お試しください。",
	}
}

// NewReasonNotAllowedError は理由を受け付けない操作に理由が指定された場合のエラーを生成する。
func NewReasonNotAllowedError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeReasonNotAllowed,
		Message:  fmt.Sprintf("操作「%s」には理由を指定できません。", action),
		Category: "validation",
		Action:   "reasonフィールドを削除してから送信してください。",
	}
}

// NewInvalidActionError は未知の操作が指定された場合のエラーを生成する。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("無効な操作です: %s", action),
		Category: "validation",
		Action:   "操作には approve、flag、block のいずれかを指定してください。",
	}
}

// NewForbiddenError は操作主体に権限がない場合のエラーを生成する。
func NewForbiddenError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("操作「%s」を実行する権限がありません。", action),
		Category: "auth",
		Action:   "権限を持つアカウントでログインしてください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は有効なセッションがない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}
