package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize はDispatcherの送信待ちイベント数の上限のデフォルト値。
const DefaultQueueSize = 256

var (
	// ErrQueueFull は送信待ちキューが満杯でイベントを破棄した場合のエラー。
	ErrQueueFull = errors.New("notify queue is full")
	// ErrDispatcherClosed はClose後にイベントを受け取った場合のエラー。
	ErrDispatcherClosed = errors.New("notify dispatcher is closed")
)

// Dispatcher はイベントをキューに積み、バックグラウンドのgoroutineで送信する。
// Notifyはブロックしない。送信はリクエストのコンテキストとは独立したタイムアウトで行う。
type Dispatcher struct {
	next    Notifier
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan ListingEvent
	done   chan struct{}
}

// NewDispatcher はnextへ送信するDispatcherを生成し、送信goroutineを開始する。
// queueSizeが0以下の場合はDefaultQueueSizeを使う。
func NewDispatcher(next Notifier, queueSize int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		next:    next,
		timeout: timeout,
		logger:  logger,
		events:  make(chan ListingEvent, queueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify はイベントをキューに積む。キューが満杯の場合はErrQueueFullを返す。
func (d *Dispatcher) Notify(_ context.Context, event ListingEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close は新しいイベントの受け付けを止め、キューに残ったイベントの送信完了を待つ。
// ctxが先に終了した場合はctx.Err()を返す。
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event ListingEvent) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.next.Notify(ctx, event); err != nil {
		d.logger.Warn("failed to deliver listing event",
			slog.String("listing_id", event.ListingID),
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}

var _ Notifier = (*Dispatcher)(nil)
