// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, event, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

var (
	// ErrAuthenticationRequired は有効なセッションがないことを表す。
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrPermissionDenied はセッションは有効だが権限が不足していることを表す。
	ErrPermissionDenied = errors.New("permission denied")
)

// RateLimitError はレート制限超過を表す。プロセスに致命的なエラーではない。
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

// Error はerrorインターフェースを実装する。
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit %d), retry after %s", e.Limit, e.RetryAfter)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeEventNotFound     = "EVENT_NOT_FOUND"
	ErrCodeEventFull         = "EVENT_FULL"
	ErrCodePotluckNotFound   = "POTLUCK_ITEM_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeInvalidHostStatus = "INVALID_HOST_STATUS"
	ErrCodeForecastNotFound  = "FORECAST_UNAVAILABLE"
	ErrCodeUnknownProvider   = "UNKNOWN_PROVIDER"
	ErrCodeCSRFFailed        = "CSRF_VALIDATION_FAILED"
)

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足の場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "権限を持つアカウントでログインし直してください。",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "event",
		Action:   "イベントIDを確認してください。",
	}
}

// NewEventFullError は定員超過エラーを生成する。
func NewEventFullError() *APIError {
	return &APIError{
		Code:     ErrCodeEventFull,
		Message:  "このイベントは定員に達しています。",
		Category: "event",
		Action:   "同伴者なしで申し込むか、ホストに問い合わせてください。",
	}
}

// NewPotluckItemNotFoundError は持ち寄り品目の未検出エラーを生成する。
func NewPotluckItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodePotluckNotFound,
		Message:  fmt.Sprintf("指定された持ち寄り品目が見つかりません: %s", itemID),
		Category: "event",
		Action:   "品目IDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidHostStatusError はホスト状態の遷移が許可されない場合のエラーを生成する。
func NewInvalidHostStatusError(current HostStatus) *APIError {
	status := string(current)
	if status == "" {
		status = "none"
	}
	return &APIError{
		Code:     ErrCodeInvalidHostStatus,
		Message:  fmt.Sprintf("現在のホスト状態（%s）ではこの操作を行えません。", status),
		Category: "validation",
		Action:   "ホスト申請の状態を確認してください。",
	}
}

// NewForecastUnavailableError は天気予報を取得できない場合のエラーを生成する。
func NewForecastUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForecastNotFound,
		Message:  fmt.Sprintf("天気予報を取得できません: %s", reason),
		Category: "event",
		Action:   "イベントの開催場所と日付を確認してください。",
	}
}

// NewUnknownProviderError は未対応のOAuthプロバイダーが指定された場合のエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("未対応のログイン方法です: %s", provider),
		Category: "auth",
		Action:   "対応しているログイン方法を選択してください。",
	}
}

// NewCSRFError はCSRFトークン検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "リクエストの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
