package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, webhook *WebhookHandler, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
		}

		pay := api.Group("/pay")
		{
			pay.POST("/submit", h.SubmitPayment)
		}

		transaction := api.Group("/transaction")
		{
			transaction.GET("/detail", h.GetTransaction)
		}

		recipient := api.Group("/recipient")
		{
			recipient.POST("/create", h.CreateRecipient)
		}
	}

	r.POST("/webhooks/pagarme", webhook.Handle)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
