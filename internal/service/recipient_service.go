package service

import (
	"context"
	"fmt"

	"splitpay/internal/gateway"
	"splitpay/internal/logger"
)

// RecipientService 在网关登记收款方（活动组织者）
type RecipientService struct {
	gateway GatewayClient
}

func NewRecipientService(gw GatewayClient) *RecipientService {
	return &RecipientService{gateway: gw}
}

type BankAccountInfo struct {
	Bank              string
	BranchNumber      string
	AccountNumber     string
	AccountCheckDigit string
	HolderName        string
	HolderDocument    string
	Type              string // checking | savings，缺省 checking
}

type CreateRecipientRequest struct {
	Name        string
	Email       string
	Document    string
	Type        string // individual | company，缺省按证件号长度判断
	BankAccount BankAccountInfo
}

// Create 创建收款方，自动转账固定为每日
func (s *RecipientService) Create(ctx context.Context, req *CreateRecipientRequest) (*gateway.RecipientResponse, error) {
	payload, err := buildRecipientRequest(req)
	if err != nil {
		return nil, err
	}

	recipient, err := s.gateway.CreateRecipient(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayCommunication, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("recipient_id", recipient.ID).
		Str("type", payload.Type).
		Msg("收款方已创建")
	return recipient, nil
}

func buildRecipientRequest(req *CreateRecipientRequest) (*gateway.RecipientRequest, error) {
	document := gateway.Digits(req.Document)
	if req.Name == "" || req.Email == "" || document == "" {
		return nil, fmt.Errorf("%w: name、email、document 不能为空", ErrInvalidRecipient)
	}

	recipientType := req.Type
	if recipientType == "" {
		recipientType = recipientTypeFor(document)
	}
	if recipientType != gateway.CustomerTypeIndividual && recipientType != gateway.CustomerTypeCompany {
		return nil, fmt.Errorf("%w: 不支持的收款方类型 %q", ErrInvalidRecipient, recipientType)
	}

	bank := req.BankAccount
	if bank.Bank == "" || bank.BranchNumber == "" || bank.AccountNumber == "" || bank.AccountCheckDigit == "" {
		return nil, fmt.Errorf("%w: 银行账户信息不完整", ErrInvalidRecipient)
	}
	accountType := bank.Type
	if accountType == "" {
		accountType = gateway.BankAccountChecking
	}
	if accountType != gateway.BankAccountChecking && accountType != gateway.BankAccountSavings {
		return nil, fmt.Errorf("%w: 不支持的账户类型 %q", ErrInvalidRecipient, accountType)
	}
	holderName := bank.HolderName
	if holderName == "" {
		holderName = req.Name
	}
	holderDocument := gateway.Digits(bank.HolderDocument)
	if holderDocument == "" {
		holderDocument = document
	}

	return &gateway.RecipientRequest{
		Name:     req.Name,
		Email:    req.Email,
		Document: document,
		Type:     recipientType,
		DefaultBankAccount: gateway.BankAccount{
			Bank:              bank.Bank,
			BranchNumber:      bank.BranchNumber,
			AccountNumber:     bank.AccountNumber,
			AccountCheckDigit: bank.AccountCheckDigit,
			HolderName:        holderName,
			HolderDocument:    holderDocument,
			Type:              accountType,
		},
		TransferSettings: gateway.DailyTransferSettings,
	}, nil
}

// CPF 11 位为个人，CNPJ 14 位为企业
func recipientTypeFor(document string) string {
	if len(document) == 14 {
		return gateway.CustomerTypeCompany
	}
	return gateway.CustomerTypeIndividual
}
