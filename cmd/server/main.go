package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splitpay/internal/config"
	"splitpay/internal/gateway"
	"splitpay/internal/handler"
	"splitpay/internal/infrastructure/cache"
	"splitpay/internal/infrastructure/database"
	"splitpay/internal/infrastructure/mq"
	"splitpay/internal/job"
	"splitpay/internal/logger"
	"splitpay/internal/repository"
	"splitpay/internal/service"
	"splitpay/internal/split"
	"splitpay/pkg/idgen"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker-id", 1, "snowflake worker id")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)

	if err := run(cfg, *workerID, log); err != nil {
		log.Fatal().Err(err).Msg("服务异常退出")
	}
}

func run(cfg *config.Config, workerID int64, log zerolog.Logger) error {
	if err := idgen.Init(workerID); err != nil {
		return fmt.Errorf("初始化 ID 生成器失败: %w", err)
	}

	fee, err := cfg.FeeConfig()
	if err != nil {
		return err
	}
	calculator, err := split.NewCalculator(fee)
	if err != nil {
		return err
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}
	log.Info().Str("host", cfg.MySQL.Host).Msg("MySQL 连接成功")

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info().Str("host", cfg.Redis.Host).Msg("Redis 连接成功")

	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka 生产者创建成功")

	if cfg.Webhook.Secret == "" {
		log.Warn().Msg("未配置 webhook.secret，所有 webhook 请求都会被拒绝")
	}

	ledger := repository.NewLedger(db, cfg.Kafka.Topic.PaymentStatus)
	gatewayClient := gateway.NewPagarmeClient(cfg.Gateway)

	orderService := service.NewOrderService(ledger)
	paymentService := service.NewPaymentService(ledger, gatewayClient, calculator, cfg.Gateway)
	recipientService := service.NewRecipientService(gatewayClient)
	webhookService := service.NewWebhookService(ledger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	deduper := cache.NewWebhookDeduper(redisClient, cfg.Webhook.DedupTTL())
	reconcileWorker := job.NewReconcileWorker(webhookService, deduper, cfg.Webhook.Workers, cfg.Webhook.QueueSize, log)
	reconcileWorker.Start(ctx)

	outboxSender := job.NewOutboxSender(repository.NewOutboxRepository(db), producer, cfg.Business.MaxRetryCount, log)
	go outboxSender.Start(ctx)

	syncJob := job.NewTransactionSyncJob(ledger, gatewayClient, webhookService, redisClient, cfg.Business, log)
	go syncJob.Start(ctx)

	router := handler.SetupRouter(
		handler.NewHandler(orderService, paymentService, recipientService),
		handler.NewWebhookHandler(cfg.Webhook.Secret, reconcileWorker),
		log,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("服务启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Info().Msg("正在关闭服务...")

	// 先停止接收请求，再处理完队列中的 webhook 事件，最后停止定时任务
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务关闭异常")
	}

	reconcileWorker.Stop()
	outboxSender.Stop()
	syncJob.Stop()
	cancel()

	log.Info().Msg("服务已关闭")
	return nil
}
