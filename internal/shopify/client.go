// Package shopify предоставляет клиент Admin GraphQL API платформы заказов.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotConfigured возвращается, если клиент создан без адреса магазина.
	ErrNotConfigured = errors.New("shopify client not configured")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVariantNotFound возвращается, если у товара нет доступного к продаже варианта.
	ErrVariantNotFound = errors.New("no sellable variant for product")
)

// ThrottledError возвращается при ответе 429.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("request throttled, retry after %s", e.RetryAfter)
}

// UserError описывает ошибку бизнес-валидации, возвращённую платформой.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserErrors реализует error для списка ошибок мутации.
type UserErrors []UserError

func (e UserErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ue := range e {
		if len(ue.Field) > 0 {
			msgs = append(msgs, strings.Join(ue.Field, ".")+": "+ue.Message)
			continue
		}
		msgs = append(msgs, ue.Message)
	}
	return "user errors: " + strings.Join(msgs, "; ")
}

// Client инкапсулирует HTTP-взаимодействие с Admin GraphQL API.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

// NewClient создаёт клиент для магазина shopDomain.
func NewClient(shopDomain, accessToken, apiVersion string, timeout time.Duration) *Client {
	base := strings.TrimRight(shopDomain, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	endpoint := ""
	if base != "" {
		endpoint = fmt.Sprintf("%s/admin/api/%s/graphql.json", base, apiVersion)
	}

	return &Client{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func do[T any](ctx context.Context, c *Client, query string, variables map[string]any) (T, error) {
	var zero T

	if c == nil || c.endpoint == "" {
		return zero, ErrNotConfigured
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return zero, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.ParseFloat(v, 64); parseErr == nil {
				retryAfter = time.Duration(seconds * float64(time.Second))
			}
		}
		return zero, &ThrottledError{RetryAfter: retryAfter}
	}

	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result graphQLResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return zero, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}

	return result.Data, nil
}

// ProductGID приводит числовой идентификатор товара к глобальному виду.
func ProductGID(id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/Product/" + id
}
