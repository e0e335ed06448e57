package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/listingd/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// listingColumns はlistingsテーブルのSELECT列。scanListingの引数順と一致させること。
const listingColumns = `id, landlord_id, unit_id, property_id, lifecycle_status, is_featured,
	payment_amount, provider_name, provider_txn_id,
	payment_date, visible_at, hidden_at, flagged_at, blocked_at, expires_at,
	flagged_reason, blocked_reason, reviewed_by, reviewed_at,
	version, created_at, updated_at`

// PostgresListingRepo はPostgreSQLを使用した掲載リポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanListing は1行分の掲載を読み取る。
func scanListing(s rowScanner) (*model.Listing, error) {
	l := &model.Listing{}
	var status string
	var providerName, providerTxnID, flaggedReason, blockedReason, reviewedBy sql.NullString
	var paymentDate, visibleAt, hiddenAt, flaggedAt, blockedAt, expiresAt, reviewedAt sql.NullTime

	if err := s.Scan(
		&l.ID, &l.LandlordID, &l.UnitID, &l.PropertyID, &status, &l.IsFeatured,
		&l.PaymentAmount, &providerName, &providerTxnID,
		&paymentDate, &visibleAt, &hiddenAt, &flaggedAt, &blockedAt, &expiresAt,
		&flaggedReason, &blockedReason, &reviewedBy, &reviewedAt,
		&l.Version, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := model.ParseLifecycleStatus(status)
	if err != nil {
		return nil, fmt.Errorf("掲載 %s のステータスが不正です: %w", l.ID, err)
	}
	l.LifecycleStatus = parsed

	l.ProviderName = nullStringValue(providerName)
	l.ProviderTxnID = nullStringValue(providerTxnID)
	l.FlaggedReason = nullStringValue(flaggedReason)
	l.BlockedReason = nullStringValue(blockedReason)
	l.ReviewedBy = nullStringValue(reviewedBy)

	l.PaymentDate = nullTimePtr(paymentDate)
	l.VisibleAt = nullTimePtr(visibleAt)
	l.HiddenAt = nullTimePtr(hiddenAt)
	l.FlaggedAt = nullTimePtr(flaggedAt)
	l.BlockedAt = nullTimePtr(blockedAt)
	l.ExpiresAt = nullTimePtr(expiresAt)
	l.ReviewedAt = nullTimePtr(reviewedAt)

	return l, nil
}

// FindByID は指定IDの掲載を監査サブコレクション込みで取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`,
		id,
	)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}

	if l.ResubmissionHistory, err = r.listResubmissions(ctx, id); err != nil {
		return nil, err
	}

	logs, err := listSanitizeLogs(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	for _, log := range logs {
		if log.Target == model.SanitizeTargetProperty {
			l.PropertySanitizeLogs = append(l.PropertySanitizeLogs, log)
		} else {
			l.UnitSanitizeLogs = append(l.UnitSanitizeLogs, log)
		}
	}

	if l.FraudReports, err = listFraudReports(ctx, r.db, id); err != nil {
		return nil, err
	}

	return l, nil
}

// listResubmissions は再提出履歴を試行番号順で返す。
func (r *PostgresListingRepo) listResubmissions(ctx context.Context, listingID string) ([]model.ResubmissionEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT attempt, type, reason, resubmitted_at
		 FROM listing_resubmissions
		 WHERE listing_id = $1
		 ORDER BY attempt ASC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("再提出履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.ResubmissionEntry
	for rows.Next() {
		var e model.ResubmissionEntry
		var typ string
		if err := rows.Scan(&e.Attempt, &typ, &e.Reason, &e.ResubmittedAt); err != nil {
			return nil, fmt.Errorf("再提出履歴の読み取りに失敗しました: %w", err)
		}
		e.Type = model.LifecycleStatus(typ)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("再提出履歴の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// Create は掲載を作成する。
func (r *PostgresListingRepo) Create(ctx context.Context, l *model.Listing) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (id, landlord_id, unit_id, property_id, lifecycle_status, is_featured,
		                       payment_amount, provider_name, provider_txn_id, expires_at,
		                       version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.LandlordID, l.UnitID, l.PropertyID, string(l.LifecycleStatus), l.IsFeatured,
		l.PaymentAmount, nullString(l.ProviderName), nullString(l.ProviderTxnID), nullTime(l.ExpiresAt),
		l.Version, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("掲載の作成に失敗しました: %w", err)
	}
	return nil
}

// ListForAdmin はWAITING_PAYMENT以外の全掲載をcreated_at降順で返す。
func (r *PostgresListingRepo) ListForAdmin(ctx context.Context) ([]*model.Listing, error) {
	return r.queryListings(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE lifecycle_status <> $1
		 ORDER BY created_at DESC`,
		string(model.StatusWaitingPayment),
	)
}

// ListByLandlord は家主の全掲載をcreated_at降順で返す。
func (r *PostgresListingRepo) ListByLandlord(ctx context.Context, landlordID string) ([]*model.Listing, error) {
	return r.queryListings(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE landlord_id = $1
		 ORDER BY created_at DESC`,
		landlordID,
	)
}

// LatestByUnit はユニットの最新の掲載を返す。見つからない場合はnil, nilを返す。
func (r *PostgresListingRepo) LatestByUnit(ctx context.Context, unitID string) (*model.Listing, error) {
	listings, err := r.queryListings(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE unit_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		unitID,
	)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, nil
	}
	return listings[0], nil
}

// ListDueForExpiry はVISIBLE/HIDDENかつexpires_at <= now の掲載を失効予定の古い順に最大limit件返す。
func (r *PostgresListingRepo) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.Listing, error) {
	return r.queryListings(ctx,
		`SELECT `+listingColumns+`
		 FROM listings
		 WHERE lifecycle_status IN ($1, $2)
		   AND expires_at IS NOT NULL
		   AND expires_at <= $3
		 ORDER BY expires_at ASC
		 LIMIT $4`,
		string(model.StatusVisible), string(model.StatusHidden), now, limit,
	)
}

func (r *PostgresListingRepo) queryListings(ctx context.Context, query string, args ...any) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("掲載一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var listings []*model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("掲載一覧の読み取りに失敗しました: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("掲載一覧の走査に失敗しました: %w", err)
	}
	return listings, nil
}

// UpdateLifecycle は掲載の可変フィールドを version = expectedVersion の場合のみ更新する。
// 再提出履歴エントリの追記と状態更新は同一トランザクションで行い、どちらかが失敗すれば両方とも反映しない。
func (r *PostgresListingRepo) UpdateLifecycle(ctx context.Context, l *model.Listing, expectedVersion int64, appended *model.ResubmissionEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE listings SET
		    lifecycle_status = $3, is_featured = $4,
		    payment_amount = $5, provider_name = $6, provider_txn_id = $7,
		    payment_date = $8, visible_at = $9, hidden_at = $10,
		    flagged_at = $11, blocked_at = $12, expires_at = $13,
		    flagged_reason = $14, blocked_reason = $15,
		    reviewed_by = $16, reviewed_at = $17,
		    version = version + 1, updated_at = $18
		 WHERE id = $1 AND version = $2`,
		l.ID, expectedVersion,
		string(l.LifecycleStatus), l.IsFeatured,
		l.PaymentAmount, nullString(l.ProviderName), nullString(l.ProviderTxnID),
		nullTime(l.PaymentDate), nullTime(l.VisibleAt), nullTime(l.HiddenAt),
		nullTime(l.FlaggedAt), nullTime(l.BlockedAt), nullTime(l.ExpiresAt),
		nullString(l.FlaggedReason), nullString(l.BlockedReason),
		nullString(l.ReviewedBy), nullTime(l.ReviewedAt),
		l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("掲載の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, l.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("掲載の存在確認に失敗しました: %w", err)
		}
		if !exists {
			return model.NewListingNotFoundError(l.ID)
		}
		return model.NewConcurrentModificationError(l.ID)
	}

	if appended != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO listing_resubmissions (listing_id, attempt, type, reason, resubmitted_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			l.ID, appended.Attempt, string(appended.Type), appended.Reason, appended.ResubmittedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return model.NewConcurrentModificationError(l.ID)
			}
			return fmt.Errorf("再提出履歴の追記に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.Version = expectedVersion + 1
	return nil
}

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimePtr はsql.NullTimeを*time.Timeに変換する。
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)
