// Package expiry は掲載期限切れのバックグラウンド処理を提供する。
// 期限を過ぎたVISIBLE/HIDDENの掲載を定期的に取得し、EXPIREDへ遷移させる。
package expiry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hitoshi/listingd/internal/metrics"
	"github.com/hitoshi/listingd/internal/model"
	"github.com/hitoshi/listingd/internal/repository"
)

const (
	defaultMaxConcurrency = 5
	defaultMaxRetries     = 3
	defaultBatchSize      = 500
)

// ListingExpirer は掲載を期限切れにする操作のインターフェース。
// moderation.Serviceが実装する。
type ListingExpirer interface {
	Expire(ctx context.Context, listingID string) (*model.Listing, error)
}

// CycleResult は1回の期限切れサイクルの結果。
type CycleResult struct {
	Due     int
	Expired int
	Skipped int
	Failed  int
}

// Scheduler は期限切れ処理のスケジューリングと並列制御を行う。
// 競合（CONCURRENT_MODIFICATION）は指数バックオフで再試行し、
// 不正遷移や掲載削除は恒久的な結果として扱う。
type Scheduler struct {
	repo           repository.ListingRepository
	expirer        ListingExpirer
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
	maxRetries     int
	batchSize      int
	now            func() time.Time
	newBackOff     func() backoff.BackOff
}

// Option はSchedulerの設定を変更する。
type Option func(*Scheduler)

// WithMaxConcurrency は同時に処理する掲載数の上限を設定する。
func WithMaxConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithMaxRetries は競合時の最大再試行回数を設定する。
func WithMaxRetries(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithBatchSize は1サイクルで取得する掲載数の上限を設定する。
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithBackOff は再試行間隔の生成関数を差し替える。
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Scheduler) { s.newBackOff = newBackOff }
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	repo repository.ListingRepository,
	expirer ListingExpirer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		repo:           repo,
		expirer:        expirer,
		metrics:        collector,
		logger:         logger,
		maxConcurrency: defaultMaxConcurrency,
		maxRetries:     defaultMaxRetries,
		batchSize:      defaultBatchSize,
		now:            time.Now,
		newBackOff:     defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Start はintervalごとに期限切れサイクルを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("期限切れスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
		slog.Int("max_retries", s.maxRetries),
	)

	// 起動直後に1回実行
	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("期限切れスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("期限切れサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は期限切れ対象を1回取得し、semaphoreで並列数を制御しながら遷移させる。
// 個々の掲載の失敗はサイクル全体を止めない。
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleResult, error) {
	start := time.Now()

	listings, err := s.repo.ListDueForExpiry(ctx, s.now(), s.batchSize)
	if err != nil {
		return nil, err
	}

	result := &CycleResult{Due: len(listings)}
	if len(listings) == 0 {
		s.logger.Info("期限切れ対象の掲載はありません")
		s.metrics.RecordExpiryCycle(0, 0, time.Since(start))
		return result, nil
	}

	s.logger.Info("期限切れサイクルを開始します",
		slog.Int("listing_count", len(listings)),
	)

	var expired, skipped, failed atomic.Int64
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, listing := range listings {
		wg.Add(1)
		sem <- struct{}{}

		go func(l *model.Listing) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.expireWithRetry(ctx, l.ID)
			switch {
			case err == nil:
				expired.Add(1)
			case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrListingNotFound):
				skipped.Add(1)
				s.logger.Info("掲載は既に期限切れ対象ではありません",
					slog.String("listing_id", l.ID),
					slog.String("code", model.ErrorCode(err)),
				)
			default:
				failed.Add(1)
				s.logger.Error("掲載の期限切れ処理に失敗しました",
					slog.String("listing_id", l.ID),
					slog.String("error", err.Error()),
				)
			}
		}(listing)
	}

	wg.Wait()

	result.Expired = int(expired.Load())
	result.Skipped = int(skipped.Load())
	result.Failed = int(failed.Load())

	duration := time.Since(start)
	s.metrics.RecordExpiryCycle(result.Expired, result.Failed, duration)
	s.logger.Info("期限切れサイクルが完了しました",
		slog.Int("listing_count", result.Due),
		slog.Int("expired", result.Expired),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}

// expireWithRetry はCONCURRENT_MODIFICATIONの場合のみ再試行する。
func (s *Scheduler) expireWithRetry(ctx context.Context, listingID string) error {
	attempt := 0
	op := func() error {
		attempt++
		_, err := s.expirer.Expire(ctx, listingID)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrConcurrentModification) {
			s.logger.Warn("競合が発生したため再試行します",
				slog.String("listing_id", listingID),
				slog.Int("attempt", attempt),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	return backoff.Retry(op, b)
}
