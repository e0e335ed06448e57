// Package moderation は掲載の状態遷移を実行するサービス層を提供する。
//
// 全ての書き込みは「読み込み → ガード判定 → 適用 → バージョン比較付き保存」の順で行う。
// バージョン不一致はCONCURRENT_MODIFICATIONとして呼び出し元に返し、ここでは再試行しない。
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/listingd/internal/lifecycle"
	"github.com/hitoshi/listingd/internal/metrics"
	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/notify"
	"github.com/hitoshi/listingd/internal/repository"
)

// DefaultListingDuration は支払い完了から掲載期限までのデフォルト期間（90日）。
const DefaultListingDuration = 90 * 24 * time.Hour

// PaymentConfirmation は決済プロバイダからの支払い完了通知。
type PaymentConfirmation struct {
	ListingID     string
	Amount        decimal.Decimal
	ProviderName  string
	ProviderTxnID string
	PaidAt        time.Time // ゼロ値または未来の日時は受信時刻に丸める
}

// NewListing は掲載作成の入力。
type NewListing struct {
	LandlordID string
	UnitID     string
	PropertyID string
	IsFeatured bool
}

// Service は掲載のモデレーション操作を提供する。
type Service struct {
	repo            repository.ListingRepository
	notifier        notify.Notifier
	metrics         metrics.MetricsCollector
	logger          *slog.Logger
	listingDuration time.Duration
	now             func() time.Time
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithListingDuration は支払い完了から掲載期限までの期間を設定する。
func WithListingDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.listingDuration = d
		}
	}
}

// NewService はServiceを生成する。notifierとcollectorがnilの場合は何もしない実装を使う。
func NewService(
	repo repository.ListingRepository,
	notifier notify.Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:            repo,
		notifier:        notifier,
		metrics:         collector,
		logger:          logger,
		listingDuration: DefaultListingDuration,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は家主の新しい掲載をWAITING_PAYMENTで作成する。
// ユニットに有効な掲載が残っている場合はUNIT_NOT_ELIGIBLEを返す。
func (s *Service) Create(ctx context.Context, in NewListing) (*model.Listing, error) {
	if strings.TrimSpace(in.LandlordID) == "" {
		return nil, model.NewValidationError("landlord_idは必須です。")
	}
	if strings.TrimSpace(in.UnitID) == "" || strings.TrimSpace(in.PropertyID) == "" {
		return nil, model.NewValidationError("unit_idとproperty_idは必須です。")
	}

	now := s.now()
	unitID := strings.TrimSpace(in.UnitID)
	latest, err := s.repo.LatestByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("ユニットの掲載状況の取得に失敗しました: %w", err)
	}
	if !lifecycle.UnitAllowsNewListing(latest, now) {
		s.logger.Info("listing create rejected",
			slog.String("unit_id", unitID),
			slog.String("latest_listing_id", latest.ID),
			slog.String("status", string(latest.LifecycleStatus)),
		)
		return nil, model.NewUnitNotEligibleError(unitID, latest.LifecycleStatus)
	}

	l := &model.Listing{
		ID:              uuid.New().String(),
		LandlordID:      in.LandlordID,
		UnitID:          unitID,
		PropertyID:      strings.TrimSpace(in.PropertyID),
		LifecycleStatus: model.StatusWaitingPayment,
		IsFeatured:      in.IsFeatured,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("掲載の作成に失敗しました: %w", err)
	}

	s.logger.Info("listing created",
		slog.String("listing_id", l.ID),
		slog.String("landlord_id", l.LandlordID),
	)
	return l, nil
}

// Get は掲載をサブコレクション込みで取得する。
func (s *Service) Get(ctx context.Context, listingID string) (*model.Listing, error) {
	l, err := s.repo.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	if l == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}
	return l, nil
}

// ListAll は管理者向けにWAITING_PAYMENT以外の全掲載を返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Listing, error) {
	listings, err := s.repo.ListForAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("掲載一覧の取得に失敗しました: %w", err)
	}
	return listings, nil
}

// ListByLandlord は家主の全掲載を返す。
func (s *Service) ListByLandlord(ctx context.Context, landlordID string) ([]*model.Listing, error) {
	listings, err := s.repo.ListByLandlord(ctx, landlordID)
	if err != nil {
		return nil, fmt.Errorf("家主の掲載一覧の取得に失敗しました: %w", err)
	}
	return listings, nil
}

// Approve は掲載を承認してVISIBLEにする。
func (s *Service) Approve(ctx context.Context, listingID, adminID string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionApprove, adminActor(adminID), "", s.now(), nil)
}

// Flag は理由付きで掲載をFLAGGEDにする。
func (s *Service) Flag(ctx context.Context, listingID, adminID, reason string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionFlag, adminActor(adminID), reason, s.now(), nil)
}

// Block は理由付きで掲載をBLOCKEDにする。
func (s *Service) Block(ctx context.Context, listingID, adminID, reason string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionBlock, adminActor(adminID), reason, s.now(), nil)
}

// Transition は外部APIの操作語彙（approve|flag|block）で管理者操作を実行する。
// reasonがnilの場合は理由なしとして扱う。
func (s *Service) Transition(ctx context.Context, listingID string, actor model.Actor, action string, reason *string) (*model.Listing, error) {
	a, err := lifecycle.ParseModerationAction(action)
	if err != nil {
		s.metrics.RecordRejection(action, model.ErrorCode(err))
		return nil, err
	}
	var r string
	if reason != nil {
		r = *reason
	}
	return s.transition(ctx, listingID, a, actor, r, s.now(), nil)
}

// ConfirmPayment は支払い完了を反映してWAITING_REVIEWにし、掲載期限を設定する。
// 同一取引IDの再送は処理済みの掲載をそのまま返す。
func (s *Service) ConfirmPayment(ctx context.Context, c PaymentConfirmation) (*model.Listing, error) {
	if strings.TrimSpace(c.ProviderTxnID) == "" {
		return nil, model.NewValidationError("provider_txn_idは必須です。")
	}
	if c.Amount.IsNegative() {
		return nil, model.NewValidationError("支払い金額が不正です。")
	}

	current, err := s.Get(ctx, c.ListingID)
	if err != nil {
		return nil, err
	}
	if current.ProviderTxnID == c.ProviderTxnID && current.PaymentDate != nil {
		s.logger.Info("duplicate payment confirmation ignored",
			slog.String("listing_id", current.ID),
			slog.String("provider_txn_id", c.ProviderTxnID),
		)
		return current, nil
	}

	now := s.now()
	at, err := paymentTime(c.PaidAt, current.CreatedAt, now)
	if err != nil {
		return nil, err
	}
	return s.transitionFrom(ctx, current, lifecycle.ActionPaymentCompleted, model.SystemActor("payment"), "", at,
		func(_, next *model.Listing) *model.ResubmissionEntry {
			expiresAt := next.PaymentDate.Add(s.listingDuration)
			if !expiresAt.After(now) {
				expiresAt = now.Add(s.listingDuration)
			}
			next.ExpiresAt = &expiresAt
			next.UpdatedAt = now
			next.PaymentAmount = c.Amount
			next.ProviderName = c.ProviderName
			next.ProviderTxnID = c.ProviderTxnID
			return nil
		})
}

// paymentTime はプロバイダ申告の支払い日時をcreatedAt以上now以下に収める。
// ゼロ値はnow、未来の日時はnowに丸め、createdAtより前の日時はVALIDATION_FAILEDとする。
func paymentTime(paidAt, createdAt, now time.Time) (time.Time, error) {
	if paidAt.IsZero() || paidAt.After(now) {
		return now, nil
	}
	if paidAt.Before(createdAt) {
		return time.Time{}, model.NewValidationError(
			fmt.Sprintf("paid_at（%s）が掲載の作成日時より前です。", paidAt.Format(time.RFC3339)))
	}
	return paidAt, nil
}

// Hide は家主が自分の掲載を非表示にする。
func (s *Service) Hide(ctx context.Context, listingID, landlordID string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionHide, landlordActor(landlordID), "", s.now(), nil)
}

// Unhide は家主が非表示の掲載を再表示する。
func (s *Service) Unhide(ctx context.Context, listingID, landlordID string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionUnhide, landlordActor(landlordID), "", s.now(), nil)
}

// Expire は掲載期限を過ぎた掲載をEXPIREDにする。失効ワーカーから呼ばれる。
func (s *Service) Expire(ctx context.Context, listingID string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionExpire, model.SystemActor("expiry"), "", s.now(), nil)
}

// Resubmit はFLAGGED/BLOCKEDの掲載を再提出し、WAITING_REVIEWに戻す。
// 履歴エントリは遷移前の状態と理由から作るため、状態のリセットより先に記録される。
// 履歴の追記と状態の更新は1回のバージョン比較付き保存で行う。
func (s *Service) Resubmit(ctx context.Context, listingID, landlordID string) (*model.Listing, error) {
	return s.transition(ctx, listingID, lifecycle.ActionResubmit, landlordActor(landlordID), "", s.now(),
		func(before, next *model.Listing) *model.ResubmissionEntry {
			entry := NewResubmissionEntry(before, next.UpdatedAt)
			return &entry
		})
}

// mutation はガード適用後の追加変更。beforeは遷移前、nextは遷移後の掲載。
// 戻り値の履歴エントリは状態更新と同じトランザクションで追記される。
type mutation func(before, next *model.Listing) *model.ResubmissionEntry

func (s *Service) transition(
	ctx context.Context,
	listingID string,
	action lifecycle.Action,
	actor model.Actor,
	reason string,
	at time.Time,
	mutate mutation,
) (*model.Listing, error) {
	current, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return s.transitionFrom(ctx, current, action, actor, reason, at, mutate)
}

func (s *Service) transitionFrom(
	ctx context.Context,
	current *model.Listing,
	action lifecycle.Action,
	actor model.Actor,
	reason string,
	at time.Time,
	mutate mutation,
) (*model.Listing, error) {
	decision, err := lifecycle.Evaluate(current, action, actor, reason, at)
	if err != nil {
		s.metrics.RecordRejection(string(action), model.ErrorCode(err))
		s.logger.Info("transition rejected",
			slog.String("listing_id", current.ID),
			slog.String("action", string(action)),
			slog.String("status", string(current.LifecycleStatus)),
			slog.String("code", model.ErrorCode(err)),
		)
		return nil, err
	}

	next := current.Clone()
	decision.Apply(next)
	next.UpdatedAt = at

	var appended *model.ResubmissionEntry
	if mutate != nil {
		appended = mutate(current, next)
	}

	if err := s.repo.UpdateLifecycle(ctx, next, current.Version, appended); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			if errors.Is(err, model.ErrConcurrentModification) {
				s.metrics.RecordConflict(string(action))
				s.logger.Warn("concurrent modification detected",
					slog.String("listing_id", current.ID),
					slog.String("action", string(action)),
					slog.Int64("expected_version", current.Version),
				)
			}
			return nil, err
		}
		return nil, fmt.Errorf("掲載の状態更新に失敗しました: %w", err)
	}
	if appended != nil {
		next.ResubmissionHistory = append(next.ResubmissionHistory, *appended)
	}

	s.metrics.RecordTransition(string(action), string(decision.From), string(decision.To))
	s.logger.Info("listing transitioned",
		slog.String("listing_id", next.ID),
		slog.String("action", string(action)),
		slog.String("from", string(decision.From)),
		slog.String("to", string(decision.To)),
		slog.String("actor_id", actor.ID),
		slog.Int64("version", next.Version),
	)
	s.publish(ctx, next, decision)

	return next, nil
}

// publish は遷移イベントを通知する。失敗はログに残すのみ。
func (s *Service) publish(ctx context.Context, l *model.Listing, d lifecycle.Decision) {
	event := notify.ListingEvent{
		ListingID:  l.ID,
		LandlordID: l.LandlordID,
		Action:     string(d.Action),
		From:       d.From,
		To:         d.To,
		Reason:     d.Reason,
		ActorID:    d.Actor.ID,
		OccurredAt: d.At,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("failed to notify listing event",
			slog.String("listing_id", l.ID),
			slog.String("action", string(d.Action)),
			slog.String("error", err.Error()),
		)
	}
}

func adminActor(id string) model.Actor {
	return model.Actor{ID: id, Role: model.RoleAdmin}
}

func landlordActor(id string) model.Actor {
	return model.Actor{ID: id, Role: model.RoleLandlord}
}
