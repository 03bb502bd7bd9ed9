package alerting

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

	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口, 只接收已格式化好的文本。
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// ConfigurationError 表示发送时缺少必要凭据。
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("notifier not configured: missing %s", strings.Join(e.Missing, ", "))
}

// NotificationDeliveryError carries the transport's status and body as-is.
type NotificationDeliveryError struct {
	Status int
	Body   string
	Err    error
}

func (e *NotificationDeliveryError) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("telegram delivery failed: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("telegram delivery failed: HTTP %d - %s: %v", e.Status, e.Body, e.Err)
	default:
		return fmt.Sprintf("telegram delivery failed: HTTP %d - %s", e.Status, e.Body)
	}
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

// TelegramOptions 描述 Telegram 推送参数。
type TelegramOptions struct {
	BotToken  string
	ChatID    string
	BaseURL   string
	ParseMode string
	Timeout   time.Duration
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken  string
	chatID    string
	baseURL   string
	parseMode string
	client    *http.Client
	logger    zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。凭据缺失不会在此报错, 只在真正发送时报错。
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.ParseMode == "" {
		opts.ParseMode = "Markdown"
	}

	return &TelegramNotifier{
		botToken:  strings.TrimSpace(opts.BotToken),
		chatID:    strings.TrimSpace(opts.ChatID),
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		parseMode: opts.ParseMode,
		client:    &http.Client{Timeout: opts.Timeout},
		logger:    logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Configured reports whether both credentials are present.
func (n *TelegramNotifier) Configured() bool {
	return n.botToken != "" && n.chatID != ""
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	var missing []string
	if n.botToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if n.chatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}

	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               n.parseMode,
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// url.Error 会带上含 token 的地址
		return &NotificationDeliveryError{Err: errors.New(strings.ReplaceAll(err.Error(), n.botToken, "REDACTED"))}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	respBody := strings.TrimSpace(string(raw))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NotificationDeliveryError{Status: resp.StatusCode, Body: respBody}
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &result); err == nil && !result.OK {
		return &NotificationDeliveryError{Status: resp.StatusCode, Body: respBody, Err: errors.New("telegram 返回 ok=false")}
	}

	n.logger.Info().Int("chars", len(text)).Msg("告警已发送 (Telegram)")
	return nil
}

// WriterNotifier prints the message instead of sending it; used for dry runs.
type WriterNotifier struct {
	Out io.Writer
}

func (w WriterNotifier) Notify(_ context.Context, text string) error {
	_, err := fmt.Fprintf(w.Out, "%s\n", text)
	return err
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = WriterNotifier{}
)
