package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ============================================================================
// 交易状态常量
// ============================================================================

const (
	TransactionStatusPending    = "PENDING"
	TransactionStatusAuthorized = "AUTHORIZED"
	TransactionStatusPaid       = "PAID"
	TransactionStatusRefunded   = "REFUNDED"
	TransactionStatusFailed     = "FAILED"
	TransactionStatusCanceled   = "CANCELED"
)

// gatewayStatusMap 网关状态 -> 本地状态
// 同步提交和 webhook 对账共用这一张表，两条路径的解释不能出现分歧
var gatewayStatusMap = map[string]string{
	"pending":    TransactionStatusPending,
	"processing": TransactionStatusPending,
	"authorized": TransactionStatusAuthorized,
	"paid":       TransactionStatusPaid,
	"refunded":   TransactionStatusRefunded,
	"failed":     TransactionStatusFailed,
	"canceled":   TransactionStatusCanceled,
}

// MapGatewayStatus 将网关状态映射为本地交易状态
// 大小写敏感的精确匹配，无法识别的状态一律降级为 PENDING，永不报错
func MapGatewayStatus(gatewayStatus string) string {
	if status, ok := gatewayStatusMap[gatewayStatus]; ok {
		return status
	}
	return TransactionStatusPending
}

// ============================================================================
// 支付方式
// ============================================================================

// 网关侧的支付方式（小写）
const (
	GatewayMethodCreditCard = "credit_card"
	GatewayMethodBoleto     = "boleto"
	GatewayMethodPix        = "pix"
)

// 本地存储的支付方式（大写）
const (
	PaymentMethodCreditCard = "CREDIT_CARD"
	PaymentMethodBoleto     = "BOLETO"
	PaymentMethodPix        = "PIX"
)

// PaymentMethodFromGateway 网关支付方式 -> 本地枚举，未知方式返回 false
func PaymentMethodFromGateway(method string) (string, bool) {
	switch method {
	case GatewayMethodCreditCard, GatewayMethodBoleto, GatewayMethodPix:
		return strings.ToUpper(method), true
	}
	return "", false
}

// ============================================================================
// 分账规则
// ============================================================================

// SplitRule 单个收款方的分账规则，字段名与网关报文保持一致
type SplitRule struct {
	RecipientID         string `json:"recipient_id"`
	Amount              int64  `json:"amount"`
	Liable              bool   `json:"liable"`
	ChargeProcessingFee bool   `json:"charge_processing_fee"`
	ChargeRemainder     *bool  `json:"charge_remainder,omitempty"`
}

// ============================================================================
// 交易实体
// ============================================================================

// Transaction 一次支付尝试
//
// 【重要】
// 1. 调用网关前先落库 PENDING 记录，崩溃后也能追溯
// 2. SplitSnapshot 为提交时的分账快照，之后不再重新计算
// 3. GatewayID 一旦写入不可变更
type Transaction struct {
	ID              string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	OrderID         string         `gorm:"type:varchar(64);index;not null" json:"order_id"`
	PaymentMethod   string         `gorm:"type:varchar(20);not null" json:"payment_method"`
	Amount          int64          `gorm:"not null" json:"amount"` // 金额（分）
	Installments    int            `gorm:"not null;default:1" json:"installments"`
	IdempotencyKey  string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`
	SplitSnapshot   datatypes.JSON `gorm:"not null" json:"split_snapshot"`
	GatewayID       *string        `gorm:"type:varchar(64);uniqueIndex" json:"gateway_id"`
	GatewayMetadata datatypes.JSON `json:"gateway_metadata,omitempty"`
	Status          string         `gorm:"type:varchar(20);index;not null" json:"status"`
	ErrorMessage    *string        `gorm:"type:varchar(512)" json:"error_message,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "payment_transaction"
}

// Splits 解析分账快照
func (t *Transaction) Splits() ([]SplitRule, error) {
	var rules []SplitRule
	if len(t.SplitSnapshot) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(t.SplitSnapshot, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// GatewayState 网关侧状态（同步响应或 webhook 推送），写入时对交易行加锁
type GatewayState struct {
	GatewayID   string         // 为空表示不修改
	Status      string         // 已映射的本地状态
	Metadata    datatypes.JSON // 网关原始报文
	OrderStatus string         // 订单投影状态，为空表示订单不变
}

// TransactionFailure 同步提交失败；网关已受理时带上网关 ID 和原始报文，便于后续 webhook 对上账
type TransactionFailure struct {
	Message   string
	GatewayID string         // 为空表示网关未受理
	Metadata  datatypes.JSON // 为空表示不修改
}
