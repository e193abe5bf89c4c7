package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/internal/wallet/application"
	"github.com/wyfcoding/p2ptrading/pkg/logger"
)

// HTTP 处理器
// 负责处理钱包余额查询与托管服务商回调
type WalletHandler struct {
	wallets *application.WalletService // 钱包应用服务
	webhook *application.WebhookApplier
}

// 创建 HTTP 处理器实例
func NewWalletHandler(wallets *application.WalletService, webhook *application.WebhookApplier) *WalletHandler {
	return &WalletHandler{wallets: wallets, webhook: webhook}
}

// 注册路由
func (h *WalletHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/wallets")
	{
		api.GET("/balances", h.GetBalances)
	}
	router.POST("/webhooks/custody", h.HandleCustodyWebhook)
}

// GetBalances 聚合查询当前用户的钱包余额
func (h *WalletHandler) GetBalances(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	balances, err := h.wallets.GetAllBalances(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// HandleCustodyWebhook 托管服务商回调。
// 回执处理是幂等的，重复投递直接返回 200，
// 否则服务商会无限重试
func (h *WalletHandler) HandleCustodyWebhook(c *gin.Context) {
	var event application.ProviderEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.webhook.Apply(c.Request.Context(), event); err != nil {
		if p2pdomain.KindOf(err) == p2pdomain.KindBadRequest {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error(c.Request.Context(), "failed to apply provider webhook",
			"external_tx_id", event.ExternalTxID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}
