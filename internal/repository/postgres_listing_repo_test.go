package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/listingd/internal/model"
)

// PostgresListingRepoはListingRepositoryインターフェースを満たすことを検証
func TestPostgresListingRepo_ImplementsInterface(t *testing.T) {
	var _ ListingRepository = (*PostgresListingRepo)(nil)
}

// PostgresSanitizeLogRepoはSanitizeLogRepositoryインターフェースを満たすことを検証
func TestPostgresSanitizeLogRepo_ImplementsInterface(t *testing.T) {
	var _ SanitizeLogRepository = (*PostgresSanitizeLogRepo)(nil)
}

// PostgresFraudReportRepoはFraudReportRepositoryインターフェースを満たすことを検証
func TestPostgresFraudReportRepo_ImplementsInterface(t *testing.T) {
	var _ FraudReportRepository = (*PostgresFraudReportRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestNewRepos_Initialize(t *testing.T) {
	if NewPostgresListingRepo(nil) == nil {
		t.Error("expected non-nil listing repo")
	}
	if NewPostgresSanitizeLogRepo(nil) == nil {
		t.Error("expected non-nil sanitize log repo")
	}
	if NewPostgresFraudReportRepo(nil) == nil {
		t.Error("expected non-nil fraud report repo")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Error("expected non-nil session repo")
	}
}

// fakeRow はscanListingに渡す行データを保持するテスト用スキャナー。
type fakeRow struct {
	values []any
	err    error
}

func (f *fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.values) {
		return fmt.Errorf("column count mismatch: dest=%d values=%d", len(dest), len(f.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.values[i].(string)
		case *bool:
			*p = f.values[i].(bool)
		case *int64:
			*p = f.values[i].(int64)
		case *time.Time:
			*p = f.values[i].(time.Time)
		case *decimal.Decimal:
			*p = f.values[i].(decimal.Decimal)
		case *sql.NullString:
			*p = f.values[i].(sql.NullString)
		case *sql.NullTime:
			*p = f.values[i].(sql.NullTime)
		default:
			return fmt.Errorf("unsupported dest type %T at %d", d, i)
		}
	}
	return nil
}

func listingRow(status string, flaggedAt sql.NullTime, flaggedReason sql.NullString) *fakeRow {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &fakeRow{values: []any{
		"listing-1", "landlord-1", "unit-1", "property-1", status, false,
		decimal.RequireFromString("1500.50"), sql.NullString{String: "gcash", Valid: true}, sql.NullString{},
		sql.NullTime{}, sql.NullTime{}, sql.NullTime{}, flaggedAt, sql.NullTime{}, sql.NullTime{},
		flaggedReason, sql.NullString{}, sql.NullString{}, sql.NullTime{},
		int64(3), created, created,
	}}
}

func TestScanListing_MapsColumns(t *testing.T) {
	flagged := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	row := listingRow("FLAGGED",
		sql.NullTime{Time: flagged, Valid: true},
		sql.NullString{String: "misleading photos", Valid: true},
	)

	l, err := scanListing(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.LifecycleStatus != model.StatusFlagged {
		t.Errorf("LifecycleStatus = %q, want FLAGGED", l.LifecycleStatus)
	}
	if l.FlaggedAt == nil || !l.FlaggedAt.Equal(flagged) {
		t.Errorf("FlaggedAt = %v, want %v", l.FlaggedAt, flagged)
	}
	if l.FlaggedReason != "misleading photos" {
		t.Errorf("FlaggedReason = %q", l.FlaggedReason)
	}
	if l.BlockedAt != nil || l.ExpiresAt != nil {
		t.Error("unset timestamps should be nil")
	}
	if l.ProviderName != "gcash" || l.ProviderTxnID != "" {
		t.Errorf("provider = %q/%q", l.ProviderName, l.ProviderTxnID)
	}
	if !l.PaymentAmount.Equal(decimal.RequireFromString("1500.5")) {
		t.Errorf("PaymentAmount = %s", l.PaymentAmount)
	}
	if l.Version != 3 {
		t.Errorf("Version = %d, want 3", l.Version)
	}
}

// 未知のステータス値は読み取りエラーになることを検証
func TestScanListing_RejectsUnknownStatus(t *testing.T) {
	row := listingRow("ARCHIVED", sql.NullTime{}, sql.NullString{})
	if _, err := scanListing(row); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestScanListing_PropagatesNoRows(t *testing.T) {
	_, err := scanListing(&fakeRow{err: sql.ErrNoRows})
	if err != sql.ErrNoRows {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("23505 should be a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})) {
		t.Error("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("23503 should not be a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Error("plain error should not be a unique violation")
	}
}

func TestNullTimeRoundTrip(t *testing.T) {
	if nt := nullTime(nil); nt.Valid {
		t.Error("nil should map to invalid NullTime")
	}
	if p := nullTimePtr(sql.NullTime{}); p != nil {
		t.Error("invalid NullTime should map to nil")
	}

	now := time.Now()
	p := nullTimePtr(nullTime(&now))
	if p == nil || !p.Equal(now) {
		t.Errorf("round trip = %v, want %v", p, now)
	}
	if p == &now {
		t.Error("nullTimePtr should not alias the input")
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should map to NULL")
	}
	if got := nullStringValue(nullString("x")); got != "x" {
		t.Errorf("round trip = %q, want x", got)
	}
}
