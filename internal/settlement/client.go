// Package settlement предоставляет клиент внешней системы подтверждения
// ожидающих начислений.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

// ErrNotConfigured возвращается, если адрес системы подтверждения не задан.
var ErrNotConfigured = errors.New("settlement client not configured")

// Статусы, которые возвращает система подтверждения.
const (
	StatusRegistered = "REGISTERED"
	StatusProcessing = "PROCESSING"
	StatusInvalid    = "INVALID"
	StatusProcessed  = "PROCESSED"
)

// Decision описывает ответ системы подтверждения по одной операции.
type Decision struct {
	Transaction string `json:"transaction"`
	Status      string `json:"status"`
}

// Final сообщает, можно ли разрешить операцию, и возвращает целевой статус.
func (d Decision) Final() (model.TransactionStatus, bool) {
	switch d.Status {
	case StatusProcessed:
		return model.TransactionStatusCompleted, true
	case StatusInvalid:
		return model.TransactionStatusFailed, true
	}
	return "", false
}

// Result содержит результат запроса: решение (nil, если система ещё не знает
// об операции или ограничила частоту), код ответа и паузу из Retry-After.
type Result struct {
	Decision   *Decision
	StatusCode int
	RetryAfter time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с системой подтверждения.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для системы подтверждения по указанному адресу.
// Ошибки соединения и ответы 5xx повторяются с экспоненциальной паузой; ответ
// 429 возвращается вызывающему вместе с Retry-After.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.HTTPClient.Timeout = 5 * time.Second

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// GetDecision запрашивает статус ожидающей операции.
func (c *Client) GetDecision(ctx context.Context, id uuid.UUID) (*Result, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/transactions/%s", base, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				res.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
		return res, nil
	case http.StatusNoContent:
		return res, nil
	case http.StatusOK:
	default:
		return res, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var d Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return res, fmt.Errorf("decode response: %w", err)
	}
	res.Decision = &d
	return res, nil
}
