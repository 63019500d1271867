package model

import (
	"time"
)

const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"
)

// OrderStatusFor 交易状态在订单上的投影
// PAID -> PAID；FAILED/CANCELED -> FAILED；其余状态不影响订单（返回空串）
//
// 订单状态反映最近一次终态交易的结果，失败的交易不妨碍后续重试把订单置为 PAID
func OrderStatusFor(transactionStatus string) string {
	switch transactionStatus {
	case TransactionStatusPaid:
		return OrderStatusPaid
	case TransactionStatusFailed, TransactionStatusCanceled:
		return OrderStatusFailed
	}
	return ""
}

type Order struct {
	ID        string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Amount    int64      `gorm:"not null" json:"amount"`
	Status    string     `gorm:"type:varchar(20);index;not null" json:"status"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "payment_order"
}
