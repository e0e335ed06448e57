package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/listingd/internal/model"
)

// fakeListingRepo はバージョン比較を再現するインメモリの掲載リポジトリ。
type fakeListingRepo struct {
	mu       sync.Mutex
	listings map[string]*model.Listing

	findErr      error
	updateErr    error
	beforeUpdate func(r *fakeListingRepo)
	updates      int
}

func newFakeRepo(listings ...*model.Listing) *fakeListingRepo {
	r := &fakeListingRepo{listings: make(map[string]*model.Listing)}
	for _, l := range listings {
		r.listings[l.ID] = l.Clone()
	}
	return r
}

func (r *fakeListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	l, ok := r.listings[id]
	if !ok {
		return nil, nil
	}
	return l.Clone(), nil
}

func (r *fakeListingRepo) Create(ctx context.Context, l *model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = l.Clone()
	return nil
}

func (r *fakeListingRepo) ListForAdmin(ctx context.Context) ([]*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Listing
	for _, l := range r.listings {
		if l.LifecycleStatus != model.StatusWaitingPayment {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (r *fakeListingRepo) ListByLandlord(ctx context.Context, landlordID string) ([]*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Listing
	for _, l := range r.listings {
		if l.LandlordID == landlordID {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (r *fakeListingRepo) LatestByUnit(ctx context.Context, unitID string) (*model.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Listing
	for _, l := range r.listings {
		if l.UnitID == unitID && (latest == nil || l.CreatedAt.After(latest.CreatedAt)) {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (r *fakeListingRepo) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*model.Listing, error) {
	return nil, nil
}

func (r *fakeListingRepo) UpdateLifecycle(ctx context.Context, l *model.Listing, expectedVersion int64, appended *model.ResubmissionEntry) error {
	if r.beforeUpdate != nil {
		hook := r.beforeUpdate
		r.beforeUpdate = nil
		hook(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.listings[l.ID]
	if !ok {
		return model.NewListingNotFoundError(l.ID)
	}
	if stored.Version != expectedVersion {
		return model.NewConcurrentModificationError(l.ID)
	}

	next := l.Clone()
	next.ResubmissionHistory = append([]model.ResubmissionEntry(nil), stored.ResubmissionHistory...)
	if appended != nil {
		for _, e := range next.ResubmissionHistory {
			if e.Attempt == appended.Attempt {
				return model.NewConcurrentModificationError(l.ID)
			}
		}
		next.ResubmissionHistory = append(next.ResubmissionHistory, *appended)
	}
	next.Version = expectedVersion + 1
	r.listings[l.ID] = next
	r.updates++

	l.Version = expectedVersion + 1
	return nil
}

// bump は別の書き込みが先に完了した状態を再現する。
func (r *fakeListingRepo) bump(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[id].Version++
}

func (r *fakeListingRepo) stored(id string) *model.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil
	}
	return l.Clone()
}
