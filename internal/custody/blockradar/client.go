// 包 blockradar 托管钱包服务商（Blockradar）REST 适配器
// 所有移动资金的调用都携带确定性幂等键，超时后用同一个键重试是安全的
package blockradar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	walletdomain "github.com/wyfcoding/p2ptrading/internal/wallet/domain"
	"github.com/wyfcoding/p2ptrading/pkg/logger"
)

// Config 服务商配置
type Config struct {
	// API 基础地址
	BaseURL string
	// API 密钥
	APIKey string
	// 平台托管主账户 ID
	EscrowAccountID string
	// 平台托管账户收款地址
	EscrowAddress string
	// 请求超时
	Timeout time.Duration
}

// Client Blockradar 客户端
type Client struct {
	config Config
	http   *http.Client
}

// NewClient 创建并返回一个新的 Client 实例。
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// transferRequest 转账请求体
type transferRequest struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	RequestID string `json:"requestId"`
}

// transferResponse 转账响应体
type transferResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
	Message string `json:"message"`
}

// balanceResponse 余额响应体
type balanceResponse struct {
	Data struct {
		Available decimal.Decimal `json:"available"`
		Locked    decimal.Decimal `json:"locked"`
		Total     decimal.Decimal `json:"total"`
	} `json:"data"`
}

// EscrowDeposit 用户服务商账户 → 平台托管账户
func (c *Client) EscrowDeposit(ctx context.Context, sourceAccountID string, amount decimal.Decimal, currency, idempotencyKey string) (string, error) {
	url := fmt.Sprintf("%s/wallets/%s/addresses/%s/withdraw",
		c.config.BaseURL, c.config.EscrowAccountID, sourceAccountID)
	return c.transfer(ctx, "escrow deposit", url, transferRequest{
		Address:   c.config.EscrowAddress,
		Amount:    amount.String(),
		Currency:  currency,
		Reference: idempotencyKey,
		RequestID: idempotencyKey,
	})
}

// ReleaseFromEscrow 平台托管账户 → 收款方服务商账户
func (c *Client) ReleaseFromEscrow(ctx context.Context, destAccountID string, amount decimal.Decimal, currency, destAddress, idempotencyKey string) (string, error) {
	url := fmt.Sprintf("%s/wallets/%s/withdraw", c.config.BaseURL, c.config.EscrowAccountID)
	return c.transfer(ctx, "escrow release", url, transferRequest{
		Address:   destAddress,
		Amount:    amount.String(),
		Currency:  currency,
		Reference: idempotencyKey,
		RequestID: idempotencyKey,
	})
}

// ReverseFromEscrow 平台托管账户 → 原出金方服务商账户
func (c *Client) ReverseFromEscrow(ctx context.Context, destAccountID string, amount decimal.Decimal, currency, destAddress, idempotencyKey string) (string, error) {
	url := fmt.Sprintf("%s/wallets/%s/withdraw", c.config.BaseURL, c.config.EscrowAccountID)
	return c.transfer(ctx, "escrow reversal", url, transferRequest{
		Address:   destAddress,
		Amount:    amount.String(),
		Currency:  currency,
		Reference: idempotencyKey,
		RequestID: idempotencyKey,
	})
}

// GetBalance 查询服务商侧余额
func (c *Client) GetBalance(ctx context.Context, externalWalletID, currency string) (*walletdomain.Balance, error) {
	url := fmt.Sprintf("%s/wallets/%s/balance?asset=%s", c.config.BaseURL, externalWalletID, currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, p2pdomain.ProviderError("balance fetch failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p2pdomain.ProviderError("balance fetch failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p2pdomain.ProviderError("balance fetch failed",
			fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body)))
	}

	var parsed balanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, p2pdomain.ProviderError("balance fetch failed", err)
	}
	return &walletdomain.Balance{
		Available: parsed.Data.Available,
		Locked:    parsed.Data.Locked,
		Total:     parsed.Data.Total,
	}, nil
}

// transfer 执行一次转账调用并返回服务商交易号
func (c *Client) transfer(ctx context.Context, operation, url string, reqBody transferRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, reqBody.RequestID)

	resp, err := c.http.Do(req)
	if err != nil {
		// 超时或网络错误：结果未知，调用方必须用同一个幂等键重试
		logger.Error(ctx, "provider call failed", "operation", operation, "idempotency_key", reqBody.RequestID, "error", err)
		return "", p2pdomain.ProviderError(operation+" failed at provider", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", p2pdomain.ProviderError(operation+" failed at provider", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error(ctx, "provider rejected call",
			"operation", operation, "status", resp.StatusCode,
			"idempotency_key", reqBody.RequestID, "body", string(body))
		return "", p2pdomain.ProviderError(operation+" failed at provider",
			fmt.Errorf("provider returned %d", resp.StatusCode))
	}

	var parsed transferResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", p2pdomain.ProviderError(operation+" returned malformed response", err)
	}
	if parsed.Data.ID == "" {
		return "", p2pdomain.ProviderError(operation+" returned no transaction id", nil)
	}

	logger.Info(ctx, "provider transfer accepted",
		"operation", operation, "tx_id", parsed.Data.ID, "idempotency_key", reqBody.RequestID)
	return parsed.Data.ID, nil
}

func (c *Client) setHeaders(req *http.Request, idempotencyKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
}
