package handler

import (
	"errors"

	"splitpay/internal/logger"
	"splitpay/internal/service"
	"splitpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 业务接口处理器
type Handler struct {
	orderService     *service.OrderService
	paymentService   *service.PaymentService
	recipientService *service.RecipientService
}

func NewHandler(orders *service.OrderService, payments *service.PaymentService, recipients *service.RecipientService) *Handler {
	return &Handler{
		orderService:     orders,
		paymentService:   payments,
		recipientService: recipients,
	}
}

// ============================================================
// 订单相关接口
// ============================================================

type CreateOrderRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"` // 分
}

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, order)
}

// GetOrder 查询订单及支付记录
// GET /api/v1/order/detail?order_id=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderID := c.Query("order_id")
	if orderID == "" {
		response.ParamError(c, "order_id 不能为空")
		return
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, detail)
}

// ============================================================
// 支付相关接口
// ============================================================

type CustomerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Document string `json:"document" binding:"required"`
	Phone    string `json:"phone"`
}

type SubmitPaymentRequest struct {
	OrderID              string          `json:"order_id" binding:"required"`
	Amount               int64           `json:"amount" binding:"required,gt=0"`
	PaymentMethod        string          `json:"payment_method" binding:"required,oneof=credit_card boleto pix"`
	CardToken            string          `json:"card_token" binding:"required_if=PaymentMethod credit_card"`
	Installments         int             `json:"installments" binding:"gte=0,lte=12"`
	OrganizerRecipientID string          `json:"organizer_recipient_id" binding:"required"`
	Customer             CustomerRequest `json:"customer" binding:"required"`
}

// SubmitPayment 发起支付（分账）
// POST /api/v1/pay/submit
func (h *Handler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.paymentService.Submit(c.Request.Context(), &service.SubmitRequest{
		OrderID:              req.OrderID,
		Amount:               req.Amount,
		PaymentMethod:        req.PaymentMethod,
		CardToken:            req.CardToken,
		Installments:         req.Installments,
		OrganizerRecipientID: req.OrganizerRecipientID,
		Customer: service.CustomerInfo{
			Email:    req.Customer.Email,
			Name:     req.Customer.Name,
			Document: req.Customer.Document,
			Phone:    req.Customer.Phone,
		},
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"transaction_id": trans.ID,
		"order_id":       trans.OrderID,
		"gateway_id":     trans.GatewayID,
		"status":         trans.Status,
		"amount":         trans.Amount,
	})
}

// GetTransaction 查询交易及分账明细
// GET /api/v1/transaction/detail?transaction_id=xxx
func (h *Handler) GetTransaction(c *gin.Context) {
	transactionID := c.Query("transaction_id")
	if transactionID == "" {
		response.ParamError(c, "transaction_id 不能为空")
		return
	}

	detail, err := h.orderService.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, detail)
}

// ============================================================
// 收款方相关接口
// ============================================================

type BankAccountRequest struct {
	Bank              string `json:"bank" binding:"required"`
	BranchNumber      string `json:"branch_number" binding:"required"`
	AccountNumber     string `json:"account_number" binding:"required"`
	AccountCheckDigit string `json:"account_check_digit" binding:"required"`
	HolderName        string `json:"holder_name"`
	HolderDocument    string `json:"holder_document"`
	Type              string `json:"type" binding:"omitempty,oneof=checking savings"`
}

type CreateRecipientRequest struct {
	Name        string             `json:"name" binding:"required"`
	Email       string             `json:"email" binding:"required,email"`
	Document    string             `json:"document" binding:"required"`
	Type        string             `json:"type" binding:"omitempty,oneof=individual company"`
	BankAccount BankAccountRequest `json:"bank_account" binding:"required"`
}

// CreateRecipient 登记组织者收款方
// POST /api/v1/recipient/create
func (h *Handler) CreateRecipient(c *gin.Context) {
	var req CreateRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	recipient, err := h.recipientService.Create(c.Request.Context(), &service.CreateRecipientRequest{
		Name:     req.Name,
		Email:    req.Email,
		Document: req.Document,
		Type:     req.Type,
		BankAccount: service.BankAccountInfo{
			Bank:              req.BankAccount.Bank,
			BranchNumber:      req.BankAccount.BranchNumber,
			AccountNumber:     req.BankAccount.AccountNumber,
			AccountCheckDigit: req.BankAccount.AccountCheckDigit,
			HolderName:        req.BankAccount.HolderName,
			HolderDocument:    req.BankAccount.HolderDocument,
			Type:              req.BankAccount.Type,
		},
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"recipient_id": recipient.ID,
		"name":         recipient.Name,
		"status":       recipient.Status,
	})
}

// writeServiceError 业务错误 -> 响应码
func writeServiceError(c *gin.Context, err error) {
	var gwErr *service.GatewayError
	switch {
	case errors.As(err, &gwErr):
		response.ErrorWithData(c, response.CodePaymentFailed, "支付失败: "+gwErr.Err.Error(), gin.H{
			"transaction_id": gwErr.TransactionID,
		})
	case errors.Is(err, service.ErrInvalidPaymentRequest), errors.Is(err, service.ErrInvalidRecipient):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInvalidSplitConfiguration):
		response.BusinessError(c, response.CodeInvalidSplit, err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, "订单不存在")
	case errors.Is(err, service.ErrTransactionNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, "交易不存在")
	case errors.Is(err, service.ErrOrderAlreadyPaid):
		response.BusinessError(c, response.CodeOrderAlreadyPaid, "订单已支付")
	case errors.Is(err, service.ErrGatewayCommunication):
		response.BusinessError(c, response.CodeGatewayError, err.Error())
	default:
		log := logger.FromContext(c.Request.Context())
		log.Error().Err(err).Msg("请求处理失败")
		response.ServerError(c, "服务器内部错误")
	}
}
