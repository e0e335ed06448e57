package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/listingd/internal/middleware"
	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/moderation"
	"github.com/hitoshi/listingd/internal/sanitizelog"
	"github.com/hitoshi/listingd/internal/worker/expiry"
)

// --- モック定義 ---

type mockModerationService struct {
	createFn         func(ctx context.Context, in moderation.NewListing) (*model.Listing, error)
	getFn            func(ctx context.Context, listingID string) (*model.Listing, error)
	listAllFn        func(ctx context.Context) ([]*model.Listing, error)
	listByLandlordFn func(ctx context.Context, landlordID string) ([]*model.Listing, error)
	transitionFn     func(ctx context.Context, listingID string, actor model.Actor, action string, reason *string) (*model.Listing, error)
	confirmPaymentFn func(ctx context.Context, c moderation.PaymentConfirmation) (*model.Listing, error)
	hideFn           func(ctx context.Context, listingID, landlordID string) (*model.Listing, error)
	unhideFn         func(ctx context.Context, listingID, landlordID string) (*model.Listing, error)
	resubmitFn       func(ctx context.Context, listingID, landlordID string) (*model.Listing, error)
}

var errNotMocked = errors.New("not mocked")

func (m *mockModerationService) Create(ctx context.Context, in moderation.NewListing) (*model.Listing, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, errNotMocked
}

func (m *mockModerationService) Get(ctx context.Context, listingID string) (*model.Listing, error) {
	if m.getFn != nil {
		return m.getFn(ctx, listingID)
	}
	return nil, model.NewListingNotFoundError(listingID)
}

func (m *mockModerationService) ListAll(ctx context.Context) ([]*model.Listing, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockModerationService) ListByLandlord(ctx context.Context, landlordID string) ([]*model.Listing, error) {
	if m.listByLandlordFn != nil {
		return m.listByLandlordFn(ctx, landlordID)
	}
	return nil, nil
}

func (m *mockModerationService) Transition(ctx context.Context, listingID string, actor model.Actor, action string, reason *string) (*model.Listing, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, listingID, actor, action, reason)
	}
	return nil, errNotMocked
}

func (m *mockModerationService) ConfirmPayment(ctx context.Context, c moderation.PaymentConfirmation) (*model.Listing, error) {
	if m.confirmPaymentFn != nil {
		return m.confirmPaymentFn(ctx, c)
	}
	return nil, errNotMocked
}

func (m *mockModerationService) Hide(ctx context.Context, listingID, landlordID string) (*model.Listing, error) {
	if m.hideFn != nil {
		return m.hideFn(ctx, listingID, landlordID)
	}
	return nil, errNotMocked
}

func (m *mockModerationService) Unhide(ctx context.Context, listingID, landlordID string) (*model.Listing, error) {
	if m.unhideFn != nil {
		return m.unhideFn(ctx, listingID, landlordID)
	}
	return nil, errNotMocked
}

func (m *mockModerationService) Resubmit(ctx context.Context, listingID, landlordID string) (*model.Listing, error) {
	if m.resubmitFn != nil {
		return m.resubmitFn(ctx, listingID, landlordID)
	}
	return nil, errNotMocked
}

type mockSanitizeLogService struct {
	appendFn func(ctx context.Context, listingID string, target model.SanitizeTarget, e sanitizelog.Entry) (*model.SanitizeLog, error)
}

func (m *mockSanitizeLogService) Append(ctx context.Context, listingID string, target model.SanitizeTarget, e sanitizelog.Entry) (*model.SanitizeLog, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, listingID, target, e)
	}
	return nil, errNotMocked
}

type mockFraudService struct {
	submitFn        func(ctx context.Context, listingID, reporterID, reason, details string) (*model.FraudReport, error)
	listByListingFn func(ctx context.Context, listingID string) ([]model.FraudReport, error)
	listAllFn       func(ctx context.Context) ([]model.FraudReport, error)
}

func (m *mockFraudService) Submit(ctx context.Context, listingID, reporterID, reason, details string) (*model.FraudReport, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, listingID, reporterID, reason, details)
	}
	return nil, errNotMocked
}

func (m *mockFraudService) ListByListing(ctx context.Context, listingID string) ([]model.FraudReport, error) {
	if m.listByListingFn != nil {
		return m.listByListingFn(ctx, listingID)
	}
	return nil, nil
}

func (m *mockFraudService) ListAll(ctx context.Context) ([]model.FraudReport, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

type mockExpiryTrigger struct {
	runOnceFn func(ctx context.Context) (*expiry.CycleResult, error)
	calls     int
}

func (m *mockExpiryTrigger) RunOnce(ctx context.Context) (*expiry.CycleResult, error) {
	m.calls++
	if m.runOnceFn != nil {
		return m.runOnceFn(ctx)
	}
	return &expiry.CycleResult{}, nil
}

// --- テストヘルパー ---

func withActor(r *http.Request, id string, role model.Role) *http.Request {
	return r.WithContext(middleware.ContextWithActor(r.Context(), model.Actor{ID: id, Role: role}))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入する。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
