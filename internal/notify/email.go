package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/order-replacement/internal/model"
)

// ErrNoRecipient возвращается, если у покупателя нет адреса почты.
var ErrNoRecipient = errors.New("customer has no email")

// EmailClient отправляет письма через HTTP API почтового сервиса.
type EmailClient struct {
	apiURL     string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEmailClient создаёт клиент почтового API.
func NewEmailClient(apiURL, apiKey, from string, timeout time.Duration, logger *zap.Logger) *EmailClient {
	return &EmailClient{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Notify рендерит и отправляет письмо покупателю.
func (c *EmailClient) Notify(ctx context.Context, n model.Notification) error {
	msg, err := Render(n)
	if err != nil {
		return err
	}
	if msg.To == "" {
		return ErrNoRecipient
	}

	from := c.from
	if from == "" {
		from = n.Store.SenderEmail
	}

	body, err := json.Marshal(sendRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email api status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	c.logger.Info("replacement email sent",
		zap.String("order_name", n.OrderName),
		zap.Int("items", len(n.Items)),
	)
	return nil
}

// LogNotifier только пишет уведомление в лог. Используется, когда почтовый API не настроен.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт уведомитель, пишущий в лог.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify рендерит письмо и пишет его в лог вместо отправки.
func (n *LogNotifier) Notify(_ context.Context, notification model.Notification) error {
	msg, err := Render(notification)
	if err != nil {
		return err
	}
	n.logger.Info("email api not configured, notification logged",
		zap.String("order_name", notification.OrderName),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("confirm_link", ConfirmLink(notification.Store.ConfirmURL, notification.OrderName)),
	)
	return nil
}
