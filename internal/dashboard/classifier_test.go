package dashboard

import (
	"testing"
	"time"

	"github.com/hitoshi/listingd/internal/model"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func listing(id string, status model.LifecycleStatus, age time.Duration) *model.Listing {
	return &model.Listing{ID: id, LifecycleStatus: status, CreatedAt: now.Add(-age)}
}

func ids(listings []*model.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const day = 24 * time.Hour

// 8日前に作成されたEXPIREDは履歴、6日前のものは現在の一覧に残る
func TestClassify_HistoryRule(t *testing.T) {
	listings := []*model.Listing{
		listing("expired-8d", model.StatusExpired, 8*day),
		listing("expired-6d", model.StatusExpired, 6*day),
		listing("blocked-30d", model.StatusBlocked, 30*day),
		listing("blocked-1d", model.StatusBlocked, day),
		listing("visible-90d", model.StatusVisible, 90*day),
		listing("flagged-10d", model.StatusFlagged, 10*day),
	}

	c := Classify(listings, now)

	if want := []string{"expired-6d", "blocked-1d", "visible-90d", "flagged-10d"}; !equalIDs(ids(c.Current), want) {
		t.Errorf("Current = %v, want %v", ids(c.Current), want)
	}
	if want := []string{"expired-8d", "blocked-30d"}; !equalIDs(ids(c.History), want) {
		t.Errorf("History = %v, want %v", ids(c.History), want)
	}
}

// ちょうど7日前は「7日より前」ではないため現在の一覧に残る
func TestIsHistory_Boundary(t *testing.T) {
	l := listing("exact", model.StatusExpired, 7*day)
	if IsHistory(l, now, DefaultHistoryGracePeriod) {
		t.Error("exactly 7 days old should not be history")
	}
	l.CreatedAt = l.CreatedAt.Add(-time.Nanosecond)
	if !IsHistory(l, now, DefaultHistoryGracePeriod) {
		t.Error("just over 7 days old should be history")
	}
}

// 全ての掲載がちょうど一方に入り、再分類しても結果は同じ
func TestClassify_TotalAndIdempotent(t *testing.T) {
	var listings []*model.Listing
	for i, s := range model.AllLifecycleStatuses {
		listings = append(listings,
			listing(string(s)+"-old", s, time.Duration(10+i)*day),
			listing(string(s)+"-new", s, time.Duration(i)*time.Hour),
		)
	}

	c := Classify(listings, now)
	if len(c.Current)+len(c.History) != len(listings) {
		t.Fatalf("current+history = %d, want %d", len(c.Current)+len(c.History), len(listings))
	}
	seen := map[string]bool{}
	for _, l := range append(append([]*model.Listing{}, c.Current...), c.History...) {
		if seen[l.ID] {
			t.Errorf("%s appears twice", l.ID)
		}
		seen[l.ID] = true
	}

	again := Classify(listings, now)
	if !equalIDs(ids(c.Current), ids(again.Current)) || !equalIDs(ids(c.History), ids(again.History)) {
		t.Error("classification is not idempotent")
	}
}

func TestClassify_Empty(t *testing.T) {
	c := Classify(nil, now)
	if len(c.Current) != 0 || len(c.History) != 0 {
		t.Errorf("Classify(nil) = %+v", c)
	}
}

func TestClassifyWithGrace_CustomPeriod(t *testing.T) {
	listings := []*model.Listing{listing("b", model.StatusBlocked, 2*day)}
	if c := ClassifyWithGrace(listings, now, day); len(c.History) != 1 {
		t.Errorf("with 1-day grace, 2-day-old blocked listing should be history")
	}
}

func TestCountByStatus_ZeroFilled(t *testing.T) {
	listings := []*model.Listing{
		listing("1", model.StatusVisible, day),
		listing("2", model.StatusVisible, day),
		listing("3", model.StatusFlagged, day),
	}

	counts := CountByStatus(listings)
	if len(counts) != len(model.AllLifecycleStatuses) {
		t.Fatalf("keys = %d, want %d", len(counts), len(model.AllLifecycleStatuses))
	}
	if counts[model.StatusVisible] != 2 || counts[model.StatusFlagged] != 1 || counts[model.StatusExpired] != 0 {
		t.Errorf("counts = %v", counts)
	}

	sum := 0
	for _, n := range counts {
		sum += n
	}
	if sum != len(listings) {
		t.Errorf("sum of counts = %d, want %d", sum, len(listings))
	}
}

func TestActiveCount(t *testing.T) {
	listings := []*model.Listing{
		listing("1", model.StatusVisible, day),
		listing("2", model.StatusHidden, day),
		listing("3", model.StatusWaitingReview, day),
		listing("4", model.StatusExpired, day),
	}
	if got := ActiveCount(listings); got != 2 {
		t.Errorf("ActiveCount = %d, want 2", got)
	}
	if got := ActiveCount(nil); got != 0 {
		t.Errorf("ActiveCount(nil) = %d, want 0", got)
	}
}

func TestSummarize(t *testing.T) {
	listings := []*model.Listing{
		listing("1", model.StatusVisible, day),
		listing("2", model.StatusExpired, 9*day),
	}
	s := Summarize(listings, now, DefaultHistoryGracePeriod)
	if s.ActiveCount != 1 || len(s.History) != 1 || len(s.Current) != 1 || s.Counts[model.StatusExpired] != 1 {
		t.Errorf("summary = %+v", s)
	}
}
