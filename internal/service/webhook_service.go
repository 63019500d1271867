package service

import (
	"context"
	"errors"
	"fmt"

	"splitpay/internal/logger"
	"splitpay/internal/model"

	"gorm.io/datatypes"
)

// WebhookService 网关异步事件对账
type WebhookService struct {
	ledger Ledger
}

func NewWebhookService(ledger Ledger) *WebhookService {
	return &WebhookService{ledger: ledger}
}

// Reconcile 把一个已验签的网关事件应用到本地交易
//
// 找不到对应交易（孤儿事件）只记日志，不算错误，返回 applied=false：
// 同步路径可能还没写入网关 ID，调用方不能把这个事件当作已处理。
// 同一事件重复应用，结果不变
func (s *WebhookService) Reconcile(ctx context.Context, event *model.WebhookEvent) (applied bool, err error) {
	log := logger.FromContext(ctx)

	trans, err := s.ledger.FindTransactionByGatewayID(ctx, event.ID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			log.Warn().
				Str("gateway_id", event.ID).
				Str("gateway_status", event.Status).
				Msg("orphan webhook event")
			return false, nil
		}
		return false, fmt.Errorf("%w: 查询交易失败: %w", ErrPersistence, err)
	}

	if _, err := s.ApplyGatewayStatus(ctx, trans, event.Status, datatypes.JSON(event.Raw)); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyGatewayStatus 映射网关状态并写入交易和订单，webhook 和补偿任务共用
//
// 网关状态直接覆盖本地状态，不做单调性校验：晚到的旧事件也会覆盖新状态
func (s *WebhookService) ApplyGatewayStatus(ctx context.Context, trans *model.Transaction, gatewayStatus string, metadata datatypes.JSON) (*model.Transaction, error) {
	status := model.MapGatewayStatus(gatewayStatus)

	updated, err := s.ledger.ApplyGatewayState(ctx, trans.ID, model.GatewayState{
		Status:      status,
		Metadata:    metadata,
		OrderStatus: model.OrderStatusFor(status),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: 更新交易 %s 状态失败: %w", ErrPersistence, trans.ID, err)
	}

	if trans.Status != status {
		log := logger.FromContext(ctx)
		log.Info().
			Str("transaction_id", trans.ID).
			Str("from", trans.Status).
			Str("to", status).
			Str("gateway_status", gatewayStatus).
			Msg("交易状态已更新")
	}
	return updated, nil
}
