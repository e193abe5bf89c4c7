package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/p2ptrading/internal/p2p/application"
	"github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/pkg/logger"
)

// HTTP 处理器
// 负责处理 P2P 交易与广告相关的 HTTP 请求
type TradeHandler struct {
	trades *application.TradeService // 交易应用服务
	ads    *application.AdService    // 广告应用服务
}

// 创建 HTTP 处理器实例
func NewTradeHandler(trades *application.TradeService, ads *application.AdService) *TradeHandler {
	return &TradeHandler{trades: trades, ads: ads}
}

// 注册路由
// 将处理器方法绑定到 Gin 路由引擎
func (h *TradeHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/p2p")
	{
		api.POST("/trades", h.InitiateTrade)
		api.GET("/trades", h.ListTrades)
		api.GET("/trades/:reference", h.GetTrade)
		api.POST("/trades/:reference/confirm-payment", h.ConfirmPayment)
		api.POST("/trades/:reference/mark-paid", h.MarkFiatSent)
		api.POST("/trades/:reference/release/otp", h.RequestReleaseOTP)
		api.POST("/trades/:reference/release", h.ReleaseCrypto)
		api.POST("/trades/:reference/cancel", h.CancelTrade)
		api.POST("/trades/:reference/dispute", h.OpenDispute)

		api.POST("/ads", h.CreateAd)
		api.GET("/ads", h.ListAds)
		api.GET("/ads/:ad_id", h.GetAd)
		api.POST("/ads/:ad_id/pause", h.PauseAd)
		api.POST("/ads/:ad_id/activate", h.ActivateAd)
		api.POST("/ads/:ad_id/close", h.CloseAd)
	}

	admin := router.Group("/api/v1/p2p/admin")
	{
		admin.GET("/disputes", h.ListDisputes)
		admin.POST("/trades/:reference/resolve", h.ResolveDispute)
	}
}

// writeError 按错误类别映射 HTTP 状态码
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindUnauthorized:
		status = http.StatusUnauthorized
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindBadRequest, domain.KindInsufficientLiquidity:
		status = http.StatusBadRequest
	case domain.KindExternalProvider:
		status = http.StatusBadGateway
	case domain.KindConfiguration:
		status = http.StatusInternalServerError
	}

	var te *domain.TradeError
	if errors.As(err, &te) {
		c.JSON(status, gin.H{"error": te.Message, "code": te.Kind.String()})
		return
	}
	logger.Error(c.Request.Context(), "unhandled error", "path", c.FullPath(), "error", err)
	c.JSON(status, gin.H{"error": "internal server error"})
}

// actorID 从请求头取当前操作人；认证由网关完成
func actorID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		offset = 0
	}
	return limit, offset
}

// InitiateTrade 发起交易
func (h *TradeHandler) InitiateTrade(c *gin.Context) {
	var req application.InitiateTradeCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		req.UserID = actorID(c)
	}

	trade, err := h.trades.InitiateTrade(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

// GetTrade 查询交易
func (h *TradeHandler) GetTrade(c *gin.Context) {
	trade, err := h.trades.GetTradeByReference(c.Request.Context(), c.Param("reference"), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// ListTrades 分页查询交易
func (h *TradeHandler) ListTrades(c *gin.Context) {
	filter := domain.TradeFilter{
		UserID:     c.Query("user_id"),
		MerchantID: c.Query("merchant_id"),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		code, err := strconv.Atoi(statusStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status := domain.TradeStatus(code)
		filter.Status = &status
	}

	limit, offset := pagination(c)
	trades, total, err := h.trades.ListTrades(c.Request.Context(), filter, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "total": total})
}

// ListDisputes 查询待裁决纠纷
func (h *TradeHandler) ListDisputes(c *gin.Context) {
	limit, offset := pagination(c)
	trades, total, err := h.trades.ListDisputes(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": trades, "total": total})
}

// ConfirmPayment 买家确认已付法币
func (h *TradeHandler) ConfirmPayment(c *gin.Context) {
	trade, err := h.trades.ConfirmBuyerPayment(c.Request.Context(), c.Param("reference"), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// MarkFiatSent 商家标记已付法币
func (h *TradeHandler) MarkFiatSent(c *gin.Context) {
	trade, err := h.trades.MerchantMarksFiatSent(c.Request.Context(), c.Param("reference"), actorID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// RequestReleaseOTP 请求放币确认验证码
func (h *TradeHandler) RequestReleaseOTP(c *gin.Context) {
	if err := h.trades.InitiateSettlementOTP(c.Request.Context(), c.Param("reference"), actorID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "confirmation code sent"})
}

// ReleaseCryptoRequest 放币请求
type ReleaseCryptoRequest struct {
	Code string `json:"code" binding:"required"`
}

// ReleaseCrypto 卖方提交验证码放币
func (h *TradeHandler) ReleaseCrypto(c *gin.Context) {
	var req ReleaseCryptoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := h.trades.ConfirmAndReleaseCrypto(c.Request.Context(), c.Param("reference"), actorID(c), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// CancelTradeRequest 取消请求
type CancelTradeRequest struct {
	Reason string `json:"reason"`
}

// CancelTrade 取消交易
func (h *TradeHandler) CancelTrade(c *gin.Context) {
	var req CancelTradeRequest
	_ = c.ShouldBindJSON(&req)

	trade, err := h.trades.CancelTrade(c.Request.Context(), c.Param("reference"), actorID(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// OpenDisputeRequest 开启纠纷请求
type OpenDisputeRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Evidence string `json:"evidence"`
}

// OpenDispute 开启纠纷
func (h *TradeHandler) OpenDispute(c *gin.Context) {
	var req OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := h.trades.OpenDispute(c.Request.Context(), c.Param("reference"), actorID(c), req.Reason, req.Evidence)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// ResolveDisputeRequest 纠纷裁决请求
type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Note       string `json:"note"`
}

// ResolveDispute 管理员裁决纠纷
func (h *TradeHandler) ResolveDispute(c *gin.Context) {
	var req ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := h.trades.AdminResolveTrade(c.Request.Context(), c.Param("reference"), actorID(c), req.Resolution, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

// CreateAd 创建广告
func (h *TradeHandler) CreateAd(c *gin.Context) {
	var req application.CreateAdCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MerchantID == "" {
		req.MerchantID = actorID(c)
	}

	ad, err := h.ads.CreateAd(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ad)
}

// GetAd 查询广告
func (h *TradeHandler) GetAd(c *gin.Context) {
	ad, err := h.ads.GetAd(c.Request.Context(), c.Param("ad_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ad)
}

// ListAds 查询商家广告列表
func (h *TradeHandler) ListAds(c *gin.Context) {
	merchantID := c.Query("merchant_id")
	if merchantID == "" {
		merchantID = actorID(c)
	}
	if merchantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "merchant_id is required"})
		return
	}

	limit, offset := pagination(c)
	ads, total, err := h.ads.ListMerchantAds(c.Request.Context(), merchantID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ads": ads, "total": total})
}

// PauseAd 暂停广告
func (h *TradeHandler) PauseAd(c *gin.Context) {
	if err := h.ads.PauseAd(c.Request.Context(), c.Param("ad_id"), actorID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ad paused"})
}

// ActivateAd 上架广告
func (h *TradeHandler) ActivateAd(c *gin.Context) {
	if err := h.ads.ActivateAd(c.Request.Context(), c.Param("ad_id"), actorID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ad activated"})
}

// CloseAd 下架广告
func (h *TradeHandler) CloseAd(c *gin.Context) {
	if err := h.ads.CloseAd(c.Request.Context(), c.Param("ad_id"), actorID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ad closed"})
}
