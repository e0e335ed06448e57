// Package notify は掲載イベントを外部へ通知する。
//
// 通知はベストエフォートで、失敗しても掲載の状態遷移は取り消さない。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/security"
)

// ListingEvent は状態遷移が確定した掲載のイベント。
type ListingEvent struct {
	ListingID  string                `json:"listing_id"`
	LandlordID string                `json:"landlord_id"`
	Action     string                `json:"action"`
	From       model.LifecycleStatus `json:"from"`
	To         model.LifecycleStatus `json:"to"`
	Reason     string                `json:"reason,omitempty"`
	ActorID    string                `json:"actor_id"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// Notifier は掲載イベントの通知先。
type Notifier interface {
	Notify(ctx context.Context, event ListingEvent) error
}

// Noop は何もしないNotifier。通知先が設定されていない場合に使う。
type Noop struct{}

// Notify は常にnilを返す。
func (Noop) Notify(ctx context.Context, event ListingEvent) error { return nil }

// WebhookNotifier はイベントをJSONでPOSTする。
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier は指定クライアントで送信するWebhookNotifierを生成する。
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: client}
}

// New は設定からNotifierを構築する。
// URLが空の場合はNoopを返し、それ以外はSSRF対策済みクライアントを使うWebhookNotifierを返す。
func New(url string, timeout time.Duration, guard security.SSRFGuardService) (Notifier, error) {
	if url == "" {
		return Noop{}, nil
	}
	if err := guard.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("通知先URLが不正です: %w", err)
	}
	return NewWebhookNotifier(url, guard.NewSafeClient(timeout)), nil
}

// Notify はイベントを送信する。2xx以外の応答はエラーとして返す。
func (n *WebhookNotifier) Notify(ctx context.Context, event ListingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal listing event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "listingd/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send listing event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier = Noop{}
	_ Notifier = (*WebhookNotifier)(nil)
)
