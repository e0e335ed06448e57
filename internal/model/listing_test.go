package model

import (
	"testing"
	"time"
)

func TestParseLifecycleStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    LifecycleStatus
		wantErr bool
	}{
		{"VISIBLE", StatusVisible, false},
		{" waiting_review ", StatusWaitingReview, false},
		{"expired", StatusExpired, false},
		{"", "", true},
		{"ACTIVE", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLifecycleStatus(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLifecycleStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestListing_CurrentReason(t *testing.T) {
	l := &Listing{LifecycleStatus: StatusFlagged, FlaggedReason: "spam", BlockedReason: "stale"}
	if got := l.CurrentReason(); got != "spam" {
		t.Errorf("CurrentReason() = %q, want spam", got)
	}
	l.LifecycleStatus = StatusVisible
	if got := l.CurrentReason(); got != "" {
		t.Errorf("CurrentReason() = %q, want empty for VISIBLE", got)
	}
}

func TestListing_CloneIsDeep(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	orig := &Listing{
		ID:                  "l-1",
		VisibleAt:           &now,
		ResubmissionHistory: []ResubmissionEntry{{Attempt: 1, Type: StatusFlagged}},
	}

	c := orig.Clone()
	*c.VisibleAt = now.Add(time.Hour)
	c.ResubmissionHistory[0].Reason = "changed"
	c.ResubmissionHistory = append(c.ResubmissionHistory, ResubmissionEntry{Attempt: 2})

	if !orig.VisibleAt.Equal(now) {
		t.Error("mutating clone timestamp changed the original")
	}
	if orig.ResubmissionHistory[0].Reason != "" || len(orig.ResubmissionHistory) != 1 {
		t.Error("mutating clone history changed the original")
	}
}
