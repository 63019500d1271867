package gateway

import (
	"encoding/json"
	"regexp"
	"time"

	"splitpay/internal/model"
)

// ============================================================================
// 网关报文
// ============================================================================
//
// 每种支付方式一个显式结构，Payment 上同一时刻只会有一个非空，
// 避免把任意 map 透传给网关。
//
// ============================================================================

const (
	CustomerTypeIndividual = "individual"
	CustomerTypeCompany    = "company"

	BankAccountChecking = "checking"
	BankAccountSavings  = "savings"
)

type Phone struct {
	CountryCode string `json:"country_code"`
	Number      string `json:"number"`
}

type Phones struct {
	MobilePhone *Phone `json:"mobile_phone,omitempty"`
}

type Customer struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Document string  `json:"document"`
	Type     string  `json:"type"`
	Phones   *Phones `json:"phones,omitempty"`
}

type CreditCardPayment struct {
	CardToken    string `json:"card_token"`
	Installments int    `json:"installments"`
}

type PixPayment struct {
	ExpiresIn int `json:"expires_in"`
}

type BoletoPayment struct {
	DueAt *time.Time `json:"due_at,omitempty"`
}

type Payment struct {
	PaymentMethod string             `json:"payment_method"`
	CreditCard    *CreditCardPayment `json:"credit_card,omitempty"`
	Pix           *PixPayment        `json:"pix,omitempty"`
	Boleto        *BoletoPayment     `json:"boleto,omitempty"`
	Split         []model.SplitRule  `json:"split"`
}

// OrderRequest POST /orders
type OrderRequest struct {
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	Customer      Customer  `json:"customer"`
	Payments      []Payment `json:"payments"`
}

// OrderResponse 网关订单，只解析本系统关心的字段，原始报文保存在 Raw
type OrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`

	Raw json.RawMessage `json:"-"`
}

type BankAccount struct {
	Bank              string `json:"bank"`
	BranchNumber      string `json:"branch_number"`
	AccountNumber     string `json:"account_number"`
	AccountCheckDigit string `json:"account_check_digit"`
	HolderName        string `json:"holder_name"`
	HolderDocument    string `json:"holder_document"`
	Type              string `json:"type"`
}

type TransferSettings struct {
	TransferEnabled  bool   `json:"transfer_enabled"`
	TransferInterval string `json:"transfer_interval"`
	TransferDay      int    `json:"transfer_day"`
}

// DailyTransferSettings 收款方固定按日自动转账
var DailyTransferSettings = TransferSettings{
	TransferEnabled:  true,
	TransferInterval: "daily",
	TransferDay:      0,
}

// RecipientRequest POST /recipients
type RecipientRequest struct {
	Name               string           `json:"name"`
	Email              string           `json:"email"`
	Document           string           `json:"document"`
	Type               string           `json:"type"`
	DefaultBankAccount BankAccount      `json:"default_bank_account"`
	TransferSettings   TransferSettings `json:"transfer_settings"`
}

type RecipientResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`

	Raw json.RawMessage `json:"-"`
}

var nonDigits = regexp.MustCompile(`\D`)

// Digits 去掉所有非数字字符（电话、CPF/CNPJ）
func Digits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// NormalizePhone 电话号码只保留数字并加上国家码，没有号码时返回 nil
func NormalizePhone(raw, countryCode string) *Phones {
	number := Digits(raw)
	if number == "" {
		return nil
	}
	return &Phones{
		MobilePhone: &Phone{CountryCode: countryCode, Number: number},
	}
}
