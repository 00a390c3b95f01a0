package gateway

import (
	"errors"
	"fmt"
)

var (
	// 在庫API・配送APIが404を返した
	ErrNotFound = errors.New("upstream resource not found")
	// サーキットブレーカーが開いている
	ErrUnavailable = errors.New("upstream unavailable")
)

// UpstreamError は外部サービス呼び出しの失敗。
// Statusは外部が返したステータス（接続失敗なら0）。
type UpstreamError struct {
	Service string
	Status  int
	Message string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %d: %s", e.Service, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	ok := errors.As(err, &ue)
	return ue, ok
}
