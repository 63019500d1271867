package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 本地消息表
// 交易状态变更与消息写入在同一个数据库事务中完成，再由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// PaymentStatusEvent 交易状态变更事件（outbox 消息体）
type PaymentStatusEvent struct {
	TransactionID  string    `json:"transaction_id"`
	OrderID        string    `json:"order_id"`
	GatewayID      string    `json:"gateway_id,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	OccurredAt     time.Time `json:"occurred_at"`
}
