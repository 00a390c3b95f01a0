package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"checkout/internal/gateway"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUpstream     ErrorKind = "upstream"
	KindInternal     ErrorKind = "internal"
)

type HTTPError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Kind:    kindOf(status),
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func IsKind(err error, kind ErrorKind) bool {
	he, ok := AsHTTPError(err)
	return ok && he.Kind == kind
}

func ValidationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

func NotFoundError(message string) error {
	return NewHTTPError(http.StatusNotFound, message)
}

func ConflictError(message string) error {
	return NewHTTPError(http.StatusConflict, message)
}

// 中身は出さない
func InternalError() error {
	return &HTTPError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal error"}
}

// UpstreamErrorFrom は在庫API・配送APIの失敗を呼び出し元向けに変換する。
// タイムアウトは504、ブレーカーopenは503、外部の4xx/5xxはそのステータス、接続失敗は502。
// 外部の認証エラーはこちらの設定の問題なので502にする。
func UpstreamErrorFrom(err error) error {
	if err == nil {
		return nil
	}
	if he, ok := AsHTTPError(err); ok {
		return he
	}

	ue, ok := gateway.AsUpstreamError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return &HTTPError{Kind: KindUpstream, Status: http.StatusGatewayTimeout, Message: "upstream timeout"}
		}
		if errors.Is(err, gateway.ErrUnavailable) {
			return &HTTPError{Kind: KindUpstream, Status: http.StatusServiceUnavailable, Message: "upstream unavailable"}
		}
		return &HTTPError{Kind: KindUpstream, Status: http.StatusBadGateway, Message: "upstream error"}
	}

	status := http.StatusBadGateway
	switch {
	case ue.Timeout:
		status = http.StatusGatewayTimeout
	case errors.Is(ue, gateway.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case ue.Status == http.StatusUnauthorized || ue.Status == http.StatusForbidden:
		status = http.StatusBadGateway
	case ue.Status >= 400 && ue.Status <= 599:
		status = ue.Status
	}

	msg := ue.Message
	if msg == "" {
		msg = "upstream error"
	}
	return &HTTPError{
		Kind:    KindUpstream,
		Status:  status,
		Message: fmt.Sprintf("%s service: %s", ue.Service, msg),
	}
}

func kindOf(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return KindUpstream
	default:
		return KindInternal
	}
}
