package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 交易错误类别
type ErrorKind int8

const (
	KindNotFound              ErrorKind = 1 // 资源不存在
	KindForbidden             ErrorKind = 2 // KYC 未通过或角色不符
	KindUnauthorized          ErrorKind = 3 // 非交易参与方或 OTP 无效
	KindConflict              ErrorKind = 4 // 当前状态下动作不合法
	KindBadRequest            ErrorKind = 5 // 请求参数非法
	KindInsufficientLiquidity ErrorKind = 6 // 广告流动性不足
	KindExternalProvider      ErrorKind = 7 // 托管钱包服务商调用失败
	KindConfiguration         ErrorKind = 8 // 缺少费率等配置
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindConflict:
		return "CONFLICT"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindInsufficientLiquidity:
		return "INSUFFICIENT_LIQUIDITY"
	case KindExternalProvider:
		return "EXTERNAL_PROVIDER_ERROR"
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// TradeError 携带类别与用户可见消息的交易错误
type TradeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NotFound 资源不存在
func NotFound(msg string) *TradeError {
	return &TradeError{Kind: KindNotFound, Message: msg}
}

// Forbidden KYC 未通过或角色不符
func Forbidden(msg string) *TradeError {
	return &TradeError{Kind: KindForbidden, Message: msg}
}

// Unauthorized 非授权参与方或 OTP 校验失败
func Unauthorized(msg string) *TradeError {
	return &TradeError{Kind: KindUnauthorized, Message: msg}
}

// Conflict 当前状态下动作不合法
func Conflict(msg string) *TradeError {
	return &TradeError{Kind: KindConflict, Message: msg}
}

// BadRequest 请求参数非法
func BadRequest(msg string) *TradeError {
	return &TradeError{Kind: KindBadRequest, Message: msg}
}

// InsufficientLiquidity 广告流动性不足
func InsufficientLiquidity(msg string) *TradeError {
	return &TradeError{Kind: KindInsufficientLiquidity, Message: msg}
}

// ProviderError 托管钱包服务商调用失败
func ProviderError(msg string, err error) *TradeError {
	return &TradeError{Kind: KindExternalProvider, Message: msg, Err: err}
}

// ConfigurationError 缺少费率等配置
func ConfigurationError(msg string) *TradeError {
	return &TradeError{Kind: KindConfiguration, Message: msg}
}

// KindOf 返回错误对应的类别；非 TradeError 返回 0
func KindOf(err error) ErrorKind {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}
