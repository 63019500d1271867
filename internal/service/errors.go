package service

import (
	"errors"
	"fmt"

	"splitpay/internal/repository"
	"splitpay/internal/split"
)

var (
	ErrInvalidSplitConfiguration = split.ErrInvalidConfiguration
	ErrOrderNotFound             = repository.ErrOrderNotFound
	ErrTransactionNotFound       = repository.ErrTransactionNotFound

	ErrGatewayCommunication  = errors.New("网关通信失败")
	ErrPersistence           = errors.New("数据持久化失败")
	ErrOrderAlreadyPaid      = errors.New("订单已支付")
	ErrInvalidPaymentRequest = errors.New("支付请求参数不合法")
	ErrInvalidRecipient      = errors.New("收款方参数不合法")
)

// GatewayError 网关提交失败，交易已落库为 FAILED
// errors.Is(err, ErrGatewayCommunication) 成立，同时保留底层原因
type GatewayError struct {
	TransactionID string
	Err           error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("交易 %s 提交网关失败: %v", e.TransactionID, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrGatewayCommunication, e.Err}
}
