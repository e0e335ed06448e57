package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/listingd/internal/model"
)

// PostgresFraudReportRepo はPostgreSQLを使用した不正報告リポジトリ。
type PostgresFraudReportRepo struct {
	db *sql.DB
}

// NewPostgresFraudReportRepo はPostgresFraudReportRepoを生成する。
func NewPostgresFraudReportRepo(db *sql.DB) *PostgresFraudReportRepo {
	return &PostgresFraudReportRepo{db: db}
}

// Create は不正報告を作成する。
func (r *PostgresFraudReportRepo) Create(ctx context.Context, report *model.FraudReport) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fraud_reports (id, listing_id, reporter_id, reason, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		report.ID, report.ListingID, report.ReporterID, report.Reason,
		nullString(report.Details), report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("不正報告の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByListing は掲載の不正報告を作成順で返す。
func (r *PostgresFraudReportRepo) ListByListing(ctx context.Context, listingID string) ([]model.FraudReport, error) {
	return listFraudReports(ctx, r.db, listingID)
}

// ListAll は全不正報告をcreated_at降順で返す。
func (r *PostgresFraudReportRepo) ListAll(ctx context.Context) ([]model.FraudReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, listing_id, reporter_id, reason, details, created_at
		 FROM fraud_reports
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("不正報告一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanFraudReports(rows)
}

// listFraudReports は掲載リポジトリからも使う共通の読み取り処理。
func listFraudReports(ctx context.Context, db *sql.DB, listingID string) ([]model.FraudReport, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, listing_id, reporter_id, reason, details, created_at
		 FROM fraud_reports
		 WHERE listing_id = $1
		 ORDER BY created_at ASC, id ASC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("不正報告の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanFraudReports(rows)
}

func scanFraudReports(rows *sql.Rows) ([]model.FraudReport, error) {
	var reports []model.FraudReport
	for rows.Next() {
		var report model.FraudReport
		var details sql.NullString
		if err := rows.Scan(
			&report.ID, &report.ListingID, &report.ReporterID, &report.Reason, &details, &report.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("不正報告の読み取りに失敗しました: %w", err)
		}
		report.Details = nullStringValue(details)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("不正報告の走査に失敗しました: %w", err)
	}
	return reports, nil
}

// compile-time interface check
var _ FraudReportRepository = (*PostgresFraudReportRepo)(nil)
