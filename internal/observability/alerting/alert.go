package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	xerrors "KOL-Agent/internal/errors"
	"KOL-Agent/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelTelegram Channel = "telegram"
	ChannelLog      Channel = "log"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	TaskID     string
	Tool       string
	Attempts   int
	MaxRetries int
	Metadata   map[string]string
	OccurredAt time.Time
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, channel := range slices.Sorted(maps.Keys(d.notifiers)) {
		notifier := d.notifiers[channel]
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 将告警写入审计日志。
type LogNotifier struct{}

// Channel 返回日志渠道。
func (LogNotifier) Channel() Channel { return ChannelLog }

// Notify 记录告警事件。
func (LogNotifier) Notify(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("task_id", event.TaskID),
		slog.String("tool", event.Tool),
		slog.Int("attempts", event.Attempts),
		slog.Int("max_retries", event.MaxRetries),
	}
	for _, k := range slices.Sorted(maps.Keys(event.Metadata)) {
		attrs = append(attrs, slog.String(k, event.Metadata[k]))
	}
	logger.Audit().Warn(event.Message, attrs...)
	return nil
}

const telegramBaseURL = "https://api.telegram.org"

// TelegramNotifier 通过 Telegram 机器人发送告警。
type TelegramNotifier struct {
	BotToken string
	ChatIDs  []string
	BaseURL  string
	Client   *http.Client
}

// NewTelegram 创建 Telegram 通知器，缺少凭据时返回 nil。
func NewTelegram(botToken string, chatIDs []string) *TelegramNotifier {
	if strings.TrimSpace(botToken) == "" || len(chatIDs) == 0 {
		return nil
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatIDs:  chatIDs,
		BaseURL:  telegramBaseURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Channel 返回 Telegram 渠道。
func (n *TelegramNotifier) Channel() Channel { return ChannelTelegram }

// Notify 向所有配置的会话发送消息。
func (n *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.BotToken == "" || len(n.ChatIDs) == 0 {
		logger.L().Warn("TelegramNotifier 未正确配置，跳过发送", slog.String("task_id", event.TaskID))
		return nil
	}
	text := formatTelegram(event)
	var errs []error
	for _, chatID := range n.ChatIDs {
		if err := n.send(ctx, chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) send(ctx context.Context, chatID, text string) error {
	base := n.BaseURL
	if base == "" {
		base = telegramBaseURL
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), n.BotToken)

	body, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %d", resp.StatusCode)
	}
	return nil
}

func formatTelegram(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>\n", html.EscapeString(string(event.Severity)), html.EscapeString(string(event.Code)))
	fmt.Fprintf(&b, "<b>任务:</b> %s\n", html.EscapeString(event.TaskID))
	if event.Tool != "" {
		fmt.Fprintf(&b, "<b>工具:</b> %s\n", html.EscapeString(event.Tool))
	}
	fmt.Fprintf(&b, "<b>重试:</b> %d/%d\n", event.Attempts, event.MaxRetries)
	fmt.Fprintf(&b, "<b>时间:</b> %s\n", event.OccurredAt.Format(time.RFC3339))
	b.WriteString(html.EscapeString(event.Message))
	for _, k := range slices.Sorted(maps.Keys(event.Metadata)) {
		fmt.Fprintf(&b, "\n- %s: %s", html.EscapeString(k), html.EscapeString(event.Metadata[k]))
	}
	return b.String()
}
