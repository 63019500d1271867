package model

import (
	"time"
)

const (
	RecipientTypePlatform  = "PLATFORM"
	RecipientTypeOrganizer = "ORGANIZER"
)

// SplitRuleLog 分账审计日志
// 每笔交易每个收款方一行，网关提交成功后一次性写入，只追加，不修改，不删除
// 作为对账和争议处理的依据
type SplitRuleLog struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID       string    `gorm:"type:varchar(64);index;not null" json:"transaction_id"`
	RecipientID         string    `gorm:"type:varchar(64);not null" json:"recipient_id"`
	RecipientType       string    `gorm:"type:varchar(20);not null" json:"recipient_type"`
	Amount              int64     `gorm:"not null" json:"amount"`
	Liable              bool      `gorm:"not null" json:"liable"`
	ChargeProcessingFee bool      `gorm:"not null" json:"charge_processing_fee"`
	ChargeRemainder     bool      `gorm:"not null;default:false" json:"charge_remainder"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SplitRuleLog) TableName() string {
	return "split_rule_log"
}

// NewSplitRuleLog 由分账规则生成审计行
func NewSplitRuleLog(transactionID, recipientType string, rule SplitRule) *SplitRuleLog {
	return &SplitRuleLog{
		TransactionID:       transactionID,
		RecipientID:         rule.RecipientID,
		RecipientType:       recipientType,
		Amount:              rule.Amount,
		Liable:              rule.Liable,
		ChargeProcessingFee: rule.ChargeProcessingFee,
		ChargeRemainder:     rule.ChargeRemainder != nil && *rule.ChargeRemainder,
	}
}
