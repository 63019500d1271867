package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"splitpay/internal/config"
	"splitpay/internal/gateway"
	"splitpay/internal/infrastructure/lock"
	"splitpay/internal/logger"
	"splitpay/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

type StaleTransactionLister interface {
	ListStaleTransactions(ctx context.Context, before time.Time, limit int) ([]*model.Transaction, error)
}

type GatewayOrderFetcher interface {
	GetOrder(ctx context.Context, gatewayID string) (*gateway.OrderResponse, error)
}

// StatusApplier 由 service.WebhookService 实现，与 webhook 对账走同一套映射和投影
type StatusApplier interface {
	ApplyGatewayStatus(ctx context.Context, trans *model.Transaction, gatewayStatus string, metadata datatypes.JSON) (*model.Transaction, error)
}

// TransactionSyncJob 交易状态补偿任务
//
// 【场景】webhook 丢失或网关长时间未推送：交易已拿到网关 ID，但一直停在 PENDING / AUTHORIZED。
// 定时挑出长时间未更新的交易，主动向网关查询并写回。
//
// 【关键点】多实例部署时，按交易加 Redis 锁，同一笔交易同一时刻只有一个实例在查询
type TransactionSyncJob struct {
	ledger     StaleTransactionLister
	gateway    GatewayOrderFetcher
	applier    StatusApplier
	rdb        *redis.Client
	owner      string
	log        zerolog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func NewTransactionSyncJob(ledger StaleTransactionLister, gw GatewayOrderFetcher, applier StatusApplier, rdb *redis.Client, cfg config.BusinessConfig, log zerolog.Logger) *TransactionSyncJob {
	host, _ := os.Hostname()
	return &TransactionSyncJob{
		ledger:     ledger,
		gateway:    gw,
		applier:    applier,
		rdb:        rdb,
		owner:      fmt.Sprintf("%s-%s", host, uuid.NewString()),
		log:        log.With().Str("job", "transaction_sync").Logger(),
		stopCh:     make(chan struct{}),
		interval:   cfg.SyncInterval(),
		staleAfter: cfg.SyncStaleAfter(),
		batchSize:  cfg.SyncBatchSize,
		now:        time.Now,
	}
}

func (j *TransactionSyncJob) Start(ctx context.Context) {
	j.log.Info().Dur("interval", j.interval).Dur("stale_after", j.staleAfter).Msg("交易补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info().Msg("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info().Msg("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *TransactionSyncJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// RunOnce 执行一轮补偿，返回成功同步的交易数
func (j *TransactionSyncJob) RunOnce(ctx context.Context) int {
	before := j.now().UTC().Add(-j.staleAfter)
	transactions, err := j.ledger.ListStaleTransactions(ctx, before, j.batchSize)
	if err != nil {
		j.log.Error().Err(err).Msg("查询待补偿交易失败")
		return 0
	}
	if len(transactions) == 0 {
		return 0
	}

	j.log.Info().Int("count", len(transactions)).Msg("发现需要补偿的交易")

	synced := 0
	for _, trans := range transactions {
		if err := j.syncTransaction(ctx, trans); err != nil {
			if !errors.Is(err, lock.ErrLockFailed) {
				j.log.Error().Err(err).Str("transaction_id", trans.ID).Msg("交易补偿失败")
			}
			continue
		}
		synced++
	}
	return synced
}

func (j *TransactionSyncJob) syncTransaction(ctx context.Context, trans *model.Transaction) error {
	if trans.GatewayID == nil {
		return nil
	}

	txLock := lock.NewTransactionLock(j.rdb, trans.ID, j.owner)
	ok, err := txLock.TryLock(ctx)
	if err != nil {
		return fmt.Errorf("获取交易锁失败: %w", err)
	}
	if !ok {
		j.log.Debug().Str("transaction_id", trans.ID).Str("lock_key", txLock.Key()).Msg("交易正在被其他实例补偿，跳过")
		return lock.ErrLockFailed
	}
	defer func() {
		if err := txLock.Unlock(context.WithoutCancel(ctx)); err != nil {
			j.log.Warn().Err(err).Str("transaction_id", trans.ID).Msg("释放交易锁失败")
		}
	}()

	order, err := j.gateway.GetOrder(ctx, *trans.GatewayID)
	if err != nil {
		return fmt.Errorf("查询网关订单 %s 失败: %w", *trans.GatewayID, err)
	}

	ctx = logger.WithContext(ctx, j.log)
	_, err = j.applier.ApplyGatewayStatus(ctx, trans, order.Status, datatypes.JSON(order.Raw))
	return err
}
