package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/listingd/internal/model"
)

// PostgresSanitizeLogRepo はPostgreSQLを使用したサニタイズログリポジトリ。
type PostgresSanitizeLogRepo struct {
	db *sql.DB
}

// NewPostgresSanitizeLogRepo はPostgresSanitizeLogRepoを生成する。
func NewPostgresSanitizeLogRepo(db *sql.DB) *PostgresSanitizeLogRepo {
	return &PostgresSanitizeLogRepo{db: db}
}

// Append はサニタイズログを追記する。
func (r *PostgresSanitizeLogRepo) Append(ctx context.Context, log *model.SanitizeLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listing_sanitize_logs (id, listing_id, target, part, reason, action, data_used, is_scamming_pattern, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		log.ID, log.ListingID, string(log.Target), log.Part, log.Reason,
		nullString(log.Action), nullString(log.DataUsed), log.IsScammingPattern, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("サニタイズログの追記に失敗しました: %w", err)
	}
	return nil
}

// ListByListing は掲載のサニタイズログを作成順で返す。
func (r *PostgresSanitizeLogRepo) ListByListing(ctx context.Context, listingID string) ([]model.SanitizeLog, error) {
	return listSanitizeLogs(ctx, r.db, listingID)
}

// listSanitizeLogs は掲載リポジトリからも使う共通の読み取り処理。
func listSanitizeLogs(ctx context.Context, db *sql.DB, listingID string) ([]model.SanitizeLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, listing_id, target, part, reason, action, data_used, is_scamming_pattern, created_at
		 FROM listing_sanitize_logs
		 WHERE listing_id = $1
		 ORDER BY created_at ASC, id ASC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("サニタイズログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var logs []model.SanitizeLog
	for rows.Next() {
		var log model.SanitizeLog
		var target string
		var action, dataUsed sql.NullString
		if err := rows.Scan(
			&log.ID, &log.ListingID, &target, &log.Part, &log.Reason,
			&action, &dataUsed, &log.IsScammingPattern, &log.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("サニタイズログの読み取りに失敗しました: %w", err)
		}
		log.Target = model.SanitizeTarget(target)
		log.Action = nullStringValue(action)
		log.DataUsed = nullStringValue(dataUsed)
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サニタイズログの走査に失敗しました: %w", err)
	}
	return logs, nil
}

// compile-time interface check
var _ SanitizeLogRepository = (*PostgresSanitizeLogRepo)(nil)
