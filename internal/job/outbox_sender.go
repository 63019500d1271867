package job

import (
	"context"
	"sync"
	"time"

	"splitpay/internal/model"

	"github.com/rs/zerolog"
)

// OutboxStore 本地消息表，生产环境由 repository.OutboxRepository 实现
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkAsSent(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, msg *model.OutboxMessage, maxRetry int) (bool, error)
}

// Publisher 消息投递，生产环境由 mq.Producer 实现
type Publisher interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender 轮询本地消息表，把交易状态变更事件投递到 Kafka
// 投递语义为至少一次，消费方按 transaction_id + status 去重
type OutboxSender struct {
	store     OutboxStore
	publisher Publisher
	log       zerolog.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
	interval  time.Duration
	batchSize int
	maxRetry  int
}

func NewOutboxSender(store OutboxStore, publisher Publisher, maxRetry int, log zerolog.Logger) *OutboxSender {
	return &OutboxSender{
		store:     store,
		publisher: publisher,
		log:       log.With().Str("job", "outbox_sender").Logger(),
		stopCh:    make(chan struct{}),
		interval:  100 * time.Millisecond,
		batchSize: 100,
		maxRetry:  maxRetry,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info().Msg("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ProcessPending 投递一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("查询待发送消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	log := s.log.With().Int64("message_id", msg.ID).Str("topic", msg.Topic).Str("key", msg.MessageKey).Logger()

	if err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		exhausted, recErr := s.store.RecordFailure(ctx, msg, s.maxRetry)
		if recErr != nil {
			log.Error().Err(recErr).Msg("记录投递失败次数失败")
			return false
		}
		if exhausted {
			log.Error().Err(err).Int("retry_count", msg.RetryCount+1).Msg("消息超过最大重试次数，标记为失败")
		} else {
			log.Warn().Err(err).Msg("消息发送失败，稍后重试")
		}
		return false
	}

	if err := s.store.MarkAsSent(ctx, msg.ID); err != nil {
		// 下一轮会重复投递
		log.Error().Err(err).Msg("更新消息状态失败")
		return false
	}
	log.Debug().Msg("消息发送成功")
	return true
}
