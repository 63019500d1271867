package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"splitpay/internal/config"
	"splitpay/internal/gateway"
	"splitpay/internal/logger"
	"splitpay/internal/model"
	"splitpay/internal/split"
	"splitpay/pkg/idgen"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentService struct {
	ledger     Ledger
	gateway    GatewayClient
	calculator *split.Calculator
	cfg        config.GatewayConfig
	now        func() time.Time
	newKey     func() string
}

func NewPaymentService(ledger Ledger, gw GatewayClient, calculator *split.Calculator, cfg config.GatewayConfig) *PaymentService {
	return &PaymentService{
		ledger:     ledger,
		gateway:    gw,
		calculator: calculator,
		cfg:        cfg,
		now:        time.Now,
		newKey:     uuid.NewString,
	}
}

// CustomerInfo 付款人信息，document / phone 可带格式字符，提交前会规范化
type CustomerInfo struct {
	Email    string
	Name     string
	Document string
	Phone    string
}

type SubmitRequest struct {
	OrderID              string
	Amount               int64  // 分
	PaymentMethod        string // credit_card | boleto | pix
	CardToken            string
	Installments         int
	OrganizerRecipientID string
	Customer             CustomerInfo
}

// Submit 为订单发起一次支付
//
// 【执行流程】
//  1. 校验请求和订单状态，生成本次提交的幂等键
//  2. 计算分账，配置不合法直接返回，不落库
//  3. 落库 PENDING 交易（带幂等键和分账快照）
//  4. 构造网关报文并提交，幂等键放在请求头
//  5. 成功：写入网关 ID、状态、元数据并投影订单，然后写分账审计日志
//  6. 失败：交易置为 FAILED，返回 *GatewayError
//
// 【关键点】必须先落库再调网关：网关已扣款但本地崩溃时，
// 仍能通过幂等键和交易记录追溯这笔钱
func (s *PaymentService) Submit(ctx context.Context, req *SubmitRequest) (*model.Transaction, error) {
	log := logger.FromContext(ctx)

	method, err := validateSubmit(req)
	if err != nil {
		return nil, err
	}

	order, err := s.ledger.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: 查询订单失败: %w", ErrPersistence, err)
	}
	if order.Status == model.OrderStatusPaid {
		return nil, ErrOrderAlreadyPaid
	}
	if order.Amount != req.Amount {
		return nil, fmt.Errorf("%w: 支付金额 %d 与订单金额 %d 不一致", ErrInvalidPaymentRequest, req.Amount, order.Amount)
	}

	idempotencyKey := s.newKey()

	result, err := s.calculator.Compute(req.Amount, req.OrganizerRecipientID)
	if err != nil {
		return nil, err
	}
	rules := result.Rules()

	snapshot, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化分账快照失败: %w", ErrPersistence, err)
	}

	trans := &model.Transaction{
		ID:             idgen.GenerateTransactionNo(),
		OrderID:        req.OrderID,
		PaymentMethod:  method,
		Amount:         req.Amount,
		Installments:   req.Installments,
		IdempotencyKey: idempotencyKey,
		SplitSnapshot:  datatypes.JSON(snapshot),
		Status:         model.TransactionStatusPending,
	}
	if err := s.ledger.CreateTransaction(ctx, trans); err != nil {
		return nil, fmt.Errorf("%w: 创建交易失败: %w", ErrPersistence, err)
	}

	log = log.With().Str("transaction_id", trans.ID).Str("order_id", trans.OrderID).Logger()

	resp, err := s.gateway.CreateOrder(ctx, idempotencyKey, s.buildOrderRequest(req, rules))
	if err != nil {
		return nil, s.fail(ctx, trans, err, nil)
	}

	status := model.MapGatewayStatus(resp.Status)
	updated, err := s.ledger.ApplyGatewayState(ctx, trans.ID, model.GatewayState{
		GatewayID:   resp.ID,
		Status:      status,
		Metadata:    datatypes.JSON(resp.Raw),
		OrderStatus: model.OrderStatusFor(status),
	})
	if err != nil {
		return nil, s.fail(ctx, trans, err, resp)
	}

	// 网关侧已受理，审计日志写入失败不回滚交易状态
	logs := []*model.SplitRuleLog{
		model.NewSplitRuleLog(trans.ID, model.RecipientTypePlatform, result.Platform),
		model.NewSplitRuleLog(trans.ID, model.RecipientTypeOrganizer, result.Organizer),
	}
	if err := s.ledger.CreateSplitRuleLogs(ctx, logs); err != nil {
		log.Error().Err(err).Str("gateway_id", resp.ID).Msg("写入分账审计日志失败")
		return nil, fmt.Errorf("%w: 写入分账审计日志失败: %w", ErrPersistence, err)
	}

	log.Info().
		Str("gateway_id", resp.ID).
		Str("status", updated.Status).
		Int64("amount", updated.Amount).
		Int64("platform_amount", result.Platform.Amount).
		Int64("organizer_amount", result.Organizer.Amount).
		Msg("支付已提交")
	return updated, nil
}

// fail 交易置为 FAILED；resp 非空表示网关已受理，网关 ID 一并落库。
// 请求上下文可能已取消，落库使用独立的上下文
func (s *PaymentService) fail(ctx context.Context, trans *model.Transaction, cause error, resp *gateway.OrderResponse) error {
	log := logger.FromContext(ctx)
	failure := model.TransactionFailure{Message: cause.Error()}
	if resp != nil {
		failure.GatewayID = resp.ID
		failure.Metadata = datatypes.JSON(resp.Raw)
	}
	if err := s.ledger.MarkTransactionFailed(context.WithoutCancel(ctx), trans.ID, failure); err != nil {
		log.Error().Err(err).Str("transaction_id", trans.ID).Msg("标记交易失败状态失败")
	}
	log.Warn().Err(cause).Str("transaction_id", trans.ID).Msg("支付提交网关失败")
	return &GatewayError{TransactionID: trans.ID, Err: cause}
}

func (s *PaymentService) buildOrderRequest(req *SubmitRequest, rules []model.SplitRule) *gateway.OrderRequest {
	payment := gateway.Payment{
		PaymentMethod: req.PaymentMethod,
		Split:         rules,
	}
	switch req.PaymentMethod {
	case model.GatewayMethodCreditCard:
		payment.CreditCard = &gateway.CreditCardPayment{
			CardToken:    req.CardToken,
			Installments: req.Installments,
		}
	case model.GatewayMethodPix:
		payment.Pix = &gateway.PixPayment{ExpiresIn: s.cfg.PixExpiresIn}
	case model.GatewayMethodBoleto:
		dueAt := s.now().UTC().AddDate(0, 0, s.cfg.BoletoDueDays)
		payment.Boleto = &gateway.BoletoPayment{DueAt: &dueAt}
	}

	return &gateway.OrderRequest{
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Customer: gateway.Customer{
			Email:    req.Customer.Email,
			Name:     req.Customer.Name,
			Document: gateway.Digits(req.Customer.Document),
			Type:     gateway.CustomerTypeIndividual,
			Phones:   gateway.NormalizePhone(req.Customer.Phone, s.cfg.PhoneCountryCode),
		},
		Payments: []gateway.Payment{payment},
	}
}

// validateSubmit 校验请求，返回本地支付方式枚举；分期数缺省为 1
func validateSubmit(req *SubmitRequest) (string, error) {
	if req.OrderID == "" {
		return "", fmt.Errorf("%w: 缺少 order_id", ErrInvalidPaymentRequest)
	}
	method, ok := model.PaymentMethodFromGateway(req.PaymentMethod)
	if !ok {
		return "", fmt.Errorf("%w: 不支持的支付方式 %q", ErrInvalidPaymentRequest, req.PaymentMethod)
	}
	if req.PaymentMethod == model.GatewayMethodCreditCard && req.CardToken == "" {
		return "", fmt.Errorf("%w: 信用卡支付缺少 card_token", ErrInvalidPaymentRequest)
	}
	if req.Installments < 0 {
		return "", fmt.Errorf("%w: 分期数不能为负数", ErrInvalidPaymentRequest)
	}
	if req.Installments == 0 {
		req.Installments = 1
	}
	return method, nil
}
