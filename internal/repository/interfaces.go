// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/listingd/internal/model"
)

// ListingRepository は掲載データの永続化インターフェース（Listing Record Store）。
// 状態の書き込みはUpdateLifecycleによるバージョン比較付き更新のみで行う。
type ListingRepository interface {
	// FindByID は指定IDの掲載を監査サブコレクション込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Listing, error)

	// Create は掲載を作成する。
	Create(ctx context.Context, listing *model.Listing) error

	// ListForAdmin はWAITING_PAYMENT以外の全掲載をcreated_at降順で返す。
	// サブコレクションは読み込まない。
	ListForAdmin(ctx context.Context) ([]*model.Listing, error)

	// ListByLandlord は家主の全掲載をcreated_at降順で返す。サブコレクションは読み込まない。
	ListByLandlord(ctx context.Context, landlordID string) ([]*model.Listing, error)

	// LatestByUnit はユニットの最新（created_at最大）の掲載を返す。掲載がない場合はnilを返す。
	// サブコレクションは読み込まない。
	LatestByUnit(ctx context.Context, unitID string) (*model.Listing, error)

	// ListDueForExpiry はVISIBLE/HIDDENかつexpires_at <= now の掲載を失効予定の古い順に最大limit件返す。
	ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.Listing, error)

	// UpdateLifecycle は掲載の可変フィールドを version = expectedVersion の場合のみ更新する。
	// appendedがnilでなければ再提出履歴エントリを同一トランザクションで追記する。
	// 成功時はlisting.Versionをインクリメントする。
	// 掲載が存在しない場合はLISTING_NOT_FOUND、バージョン不一致の場合は
	// CONCURRENT_MODIFICATIONの*model.APIErrorを返す。
	UpdateLifecycle(ctx context.Context, listing *model.Listing, expectedVersion int64, appended *model.ResubmissionEntry) error
}

// SanitizeLogRepository はサニタイズログの永続化インターフェース。追記のみ。
type SanitizeLogRepository interface {
	// Append はサニタイズログを追記する。
	Append(ctx context.Context, log *model.SanitizeLog) error

	// ListByListing は掲載のサニタイズログを作成順で返す。
	ListByListing(ctx context.Context, listingID string) ([]model.SanitizeLog, error)
}

// FraudReportRepository は不正報告の永続化インターフェース。追記のみ。
type FraudReportRepository interface {
	// Create は不正報告を作成する。
	Create(ctx context.Context, report *model.FraudReport) error

	// ListByListing は掲載の不正報告を作成順で返す。
	ListByListing(ctx context.Context, listingID string) ([]model.FraudReport, error)

	// ListAll は全不正報告をcreated_at降順で返す。
	ListAll(ctx context.Context) ([]model.FraudReport, error)
}

// SessionRepository はセッションデータの参照インターフェース。
// セッションは外部の認証サービスが発行するため、このサービスは読み取りのみ行う。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}
