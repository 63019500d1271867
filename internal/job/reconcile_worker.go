package job

import (
	"context"
	"sync"

	"splitpay/internal/infrastructure/cache"
	"splitpay/internal/logger"
	"splitpay/internal/model"

	"github.com/rs/zerolog"
)

// Reconciler 由 service.WebhookService 实现；applied=false 表示孤儿事件，未写入任何交易
type Reconciler interface {
	Reconcile(ctx context.Context, event *model.WebhookEvent) (applied bool, err error)
}

// Deduper 由 cache.WebhookDeduper 实现
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// ReconcileWorker webhook 事件异步处理
//
// HTTP 处理函数验签后只负责 Enqueue，立即返回 200；
// 对账在固定数量的 worker 中执行，失败只记日志，由网关重推或补偿任务兜底
type ReconcileWorker struct {
	reconciler Reconciler
	deduper    Deduper
	queue      chan *model.WebhookEvent
	workers    int
	log        zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewReconcileWorker deduper 可以为 nil（不去重）
func NewReconcileWorker(reconciler Reconciler, deduper Deduper, workers, queueSize int, log zerolog.Logger) *ReconcileWorker {
	if workers <= 0 {
		workers = 1
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		deduper:    deduper,
		queue:      make(chan *model.WebhookEvent, queueSize),
		workers:    workers,
		log:        log.With().Str("job", "reconcile_worker").Logger(),
	}
}

// Enqueue 非阻塞投递，队列已满或已停止时丢弃并返回 false
func (w *ReconcileWorker) Enqueue(event *model.WebhookEvent) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.log.Error().Str("gateway_id", event.ID).Msg("worker 已停止，丢弃 webhook 事件")
		return false
	}

	select {
	case w.queue <- event:
		return true
	default:
		w.log.Error().
			Str("gateway_id", event.ID).
			Str("gateway_status", event.Status).
			Int("queue_size", cap(w.queue)).
			Msg("对账队列已满，丢弃 webhook 事件")
		return false
	}
}

func (w *ReconcileWorker) Start(ctx context.Context) {
	w.log.Info().Int("workers", w.workers).Int("queue_size", cap(w.queue)).Msg("对账 worker 启动")
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Stop 停止接收新事件，处理完队列中剩余事件后返回
func (w *ReconcileWorker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info().Msg("对账 worker 已停止")
}

func (w *ReconcileWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.queue:
			if !ok {
				return
			}
			w.handle(ctx, event)
		}
	}
}

func (w *ReconcileWorker) handle(ctx context.Context, event *model.WebhookEvent) {
	log := w.log.With().Str("gateway_id", event.ID).Str("gateway_status", event.Status).Logger()
	ctx = logger.WithContext(ctx, log)

	key := cache.Key(event.Raw)
	if w.deduper != nil {
		seen, err := w.deduper.Seen(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("查询去重记录失败，继续处理")
		} else if seen {
			log.Debug().Msg("重复 webhook 事件，跳过")
			return
		}
	}

	applied, err := w.reconciler.Reconcile(ctx, event)
	if err != nil {
		log.Error().Err(err).Msg("webhook 对账失败")
		return
	}
	// 孤儿事件不记去重：网关 ID 提交后的重推仍需处理
	if !applied {
		return
	}

	if w.deduper != nil {
		if err := w.deduper.Mark(ctx, key); err != nil {
			log.Warn().Err(err).Msg("写入去重记录失败")
		}
	}
}
