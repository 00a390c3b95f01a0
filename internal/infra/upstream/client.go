package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout/internal/gateway"
	"checkout/internal/logging"
	"checkout/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const maxMessageLen = 512

type Config struct {
	Service string
	BaseURL string

	// 1回の呼び出しの上限
	Timeout time.Duration

	BreakerFailures uint32
	BreakerOpenFor  time.Duration

	// GETだけリトライする。0ならリトライしない
	ReadRetryMaxElapsed time.Duration
}

// Client は在庫API・配送API共通のHTTP部品。
// Bearerトークン付与、タイムアウト、ブレーカー、GETのリトライ、トレースを行う。
type Client struct {
	service  string
	baseURL  string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	timeout  time.Duration
	retryMax time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// tsがnilなら認証ヘッダーを付けない。mはnil可
func New(cfg Config, ts oauth2.TokenSource, logger *zap.Logger, m *metrics.Metrics) *Client {
	var rt http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if ts != nil {
		rt = &oauth2.Transport{Source: ts, Base: rt}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		service:  cfg.Service,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Transport: rt},
		cb:       newBreaker(cfg.Service, cfg.BreakerFailures, cfg.BreakerOpenFor, logger),
		timeout:  timeout,
		retryMax: cfg.ReadRetryMaxElapsed,
		logger:   logger,
		metrics:  m,
	}
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
		payload = b
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := func() ([]byte, error) {
		return ExecuteWithBreaker(c.cb, func() ([]byte, error) {
			return c.send(ctx, method, path, payload)
		})
	}

	var (
		respBody []byte
		err      error
	)
	if method == http.MethodGet && c.retryMax > 0 {
		respBody, err = c.retry(ctx, call)
	} else {
		respBody, err = call()
	}

	if err != nil {
		err = c.mapError(ctx, err)
		c.count("error")
		logging.Warn(ctx, c.logger, "upstream call failed",
			zap.String("service", c.service),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	c.count("ok")

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &gateway.UpstreamError{
			Service: c.service,
			Status:  http.StatusBadGateway,
			Message: "invalid response body",
			Err:     err,
		}
	}
	return nil
}

// 5xxと接続エラーだけ再試行。4xxとブレーカーopenは即終了
func (c *Client) retry(ctx context.Context, call func() ([]byte, error)) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.retryMax

	return backoff.RetryWithData(func() ([]byte, error) {
		res, err := call()
		if err == nil {
			return res, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(err)
		}
		var ue *gateway.UpstreamError
		if errors.As(err, &ue) && ue.Status > 0 && ue.Status < http.StatusInternalServerError {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithContext(b, ctx))
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		ue := &gateway.UpstreamError{
			Service: c.service,
			Status:  resp.StatusCode,
			Message: extractMessage(respBody, resp.Status),
		}
		if resp.StatusCode == http.StatusNotFound {
			ue.Err = gateway.ErrNotFound
		}
		return nil, ue
	}

	return respBody, nil
}

// 呼び出し側が見る形（UpstreamError）にそろえる
func (c *Client) mapError(ctx context.Context, err error) error {
	var ue *gateway.UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &gateway.UpstreamError{
			Service: c.service,
			Status:  http.StatusServiceUnavailable,
			Message: "service unavailable",
			Err:     gateway.ErrUnavailable,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &gateway.UpstreamError{
			Service: c.service,
			Message: "timeout",
			Timeout: true,
			Err:     err,
		}
	}

	return &gateway.UpstreamError{
		Service: c.service,
		Message: "connection failed",
		Err:     err,
	}
}

func (c *Client) count(result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Upstream.WithLabelValues(c.service, result).Inc()
}

// {"detail": ...} / {"message": ...} / {"error": ...} を優先。無ければ本文そのまま
func extractMessage(body []byte, fallback string) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		for _, k := range []string{"detail", "message", "error"} {
			if s, ok := m[k].(string); ok && s != "" {
				return truncate(s)
			}
		}
	}

	s := strings.TrimSpace(string(body))
	if s == "" {
		return fallback
	}
	return truncate(s)
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen]
	}
	return s
}
