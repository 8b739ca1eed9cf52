package pagesapi

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError 上游返回的 HTTP 错误，保留状态码供上层分流
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("上游服务错误(%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("上游服务错误(%d)", e.StatusCode)
}

// ConnectivityError 网络层失败，没有拿到任何响应，不携带状态码
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("连接上游服务失败: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsQuota 判断是否为积分不足错误(402)，UI 据此跳转升级流程而非报通用错误
func IsQuota(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusPaymentRequired
}

// IsNotFound 判断是否为 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConnectivity 判断是否为网络层失败
func IsConnectivity(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}

// StatusOf 提取 HTTP 状态码，网络错误返回 0
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
