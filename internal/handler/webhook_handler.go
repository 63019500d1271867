package handler

import (
	"io"
	"net/http"

	"splitpay/internal/logger"
	"splitpay/internal/model"
	"splitpay/pkg/signature"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// EventQueue 由 job.ReconcileWorker 实现
type EventQueue interface {
	Enqueue(event *model.WebhookEvent) bool
}

// WebhookHandler 网关 webhook 入口
//
// 【执行流程】
//  1. 读取原始请求体（验签必须基于原始字节，不能先反序列化）
//  2. 验签失败或未配置密钥 -> 401，不做任何处理
//  3. 验签通过 -> 解析并投递到对账队列，立即返回 200
//
// 验签通过后无论解析、对账结果如何都返回 200，避免网关无意义地重推
type WebhookHandler struct {
	secret []byte
	queue  EventQueue
}

func NewWebhookHandler(secret string, queue EventQueue) *WebhookHandler {
	return &WebhookHandler{secret: []byte(secret), queue: queue}
}

// Handle POST /webhooks/pagarme
func (h *WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("读取 webhook 请求体失败")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if len(h.secret) == 0 {
		log.Error().Msg("未配置 webhook 密钥，拒绝所有 webhook 请求")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if !signature.Verify(body, c.GetHeader(signature.HeaderName), h.secret) {
		log.Warn().Str("client_ip", c.ClientIP()).Msg("webhook 验签失败")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	event, err := model.ParseWebhookEvent(body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook 报文无法解析，已忽略")
	} else {
		h.queue.Enqueue(event)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
