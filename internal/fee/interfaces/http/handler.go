package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2ptrading/internal/fee/application"
)

// HTTP 处理器
// 费率规则管理，仅运营后台使用
type FeeHandler struct {
	app *application.FeeService
}

// 创建 HTTP 处理器实例
func NewFeeHandler(app *application.FeeService) *FeeHandler {
	return &FeeHandler{app: app}
}

// 注册路由
func (h *FeeHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/fees")
	{
		api.PUT("/rules", h.UpsertRule)
		api.GET("/rules", h.ListRules)
	}
}

// UpsertRuleRequest 费率规则写入请求
type UpsertRuleRequest struct {
	Operation       string          `json:"operation" binding:"required"`
	Asset           string          `json:"asset" binding:"required"`
	CounterCurrency string          `json:"counter_currency" binding:"required"`
	RatePerUnit     decimal.Decimal `json:"rate_per_unit" binding:"required"`
}

// UpsertRule 创建或更新费率规则
func (h *FeeHandler) UpsertRule(c *gin.Context) {
	var req UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.app.UpsertRule(c.Request.Context(), req.Operation, req.Asset, req.CounterCurrency, req.RatePerUnit); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "fee rule saved"})
}

// ListRules 列出全部费率规则
func (h *FeeHandler) ListRules(c *gin.Context) {
	rules, err := h.app.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}
