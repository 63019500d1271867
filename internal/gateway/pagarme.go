package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"splitpay/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const IdempotencyHeader = "Idempotency-Key"

var (
	ErrMissingGatewayID = errors.New("网关响应缺少 id")
	ErrDecodeResponse   = errors.New("网关响应解析失败")
)

// APIError 网关返回非 2xx
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("网关返回错误: status=%d, body=%s", e.StatusCode, e.Body)
}

// PagarmeClient Pagar.me core v5 客户端
// 超时、重试由客户端自己负责；调用方只关心成功或失败
type PagarmeClient struct {
	http *resty.Client
}

func NewPagarmeClient(cfg config.GatewayConfig) *PagarmeClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.APIKey, "").
		SetTimeout(cfg.Timeout()).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &PagarmeClient{http: client}
}

// CreateOrder 创建订单
//
// 【关键点】幂等键放在请求头中，传输层重试不会在网关侧产生重复扣款
func (c *PagarmeClient) CreateOrder(ctx context.Context, idempotencyKey string, req *OrderRequest) (*OrderResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(IdempotencyHeader, idempotencyKey).
		SetBody(req).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("调用网关创建订单失败: %w", err)
	}

	order, err := decodeOrder(resp)
	if err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, ErrMissingGatewayID
	}
	return order, nil
}

// GetOrder 查询网关订单
func (c *PagarmeClient) GetOrder(ctx context.Context, gatewayID string) (*OrderResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/orders/" + url.PathEscape(gatewayID))
	if err != nil {
		return nil, fmt.Errorf("查询网关订单失败: %w", err)
	}
	return decodeOrder(resp)
}

// CreateRecipient 创建收款方（组织者）
func (c *PagarmeClient) CreateRecipient(ctx context.Context, req *RecipientRequest) (*RecipientResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(IdempotencyHeader, uuid.NewString()).
		SetBody(req).
		Post("/recipients")
	if err != nil {
		return nil, fmt.Errorf("调用网关创建收款方失败: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var recipient RecipientResponse
	if err := json.Unmarshal(resp.Body(), &recipient); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	recipient.Raw = append(json.RawMessage(nil), resp.Body()...)
	return &recipient, nil
}

func decodeOrder(resp *resty.Response) (*OrderResponse, error) {
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var order OrderResponse
	if err := json.Unmarshal(resp.Body(), &order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	order.Raw = append(json.RawMessage(nil), resp.Body()...)
	return &order, nil
}
