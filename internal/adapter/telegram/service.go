package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketwatch/internal/domain"
	"marketwatch/internal/utils"
)

// DefaultAPIURL is the Telegram Bot API base
const DefaultAPIURL = "https://api.telegram.org"

type NotificationService struct {
	botToken   string
	chatID     string
	apiURL     string
	enabled    bool
	location   *time.Location
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewNotificationService creates a notifier. It is a silent no-op unless
// both botToken and chatID are set.
func NewNotificationService(botToken, chatID, apiURL, timezone string, logger *zap.Logger) *NotificationService {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &NotificationService{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   strings.TrimRight(apiURL, "/"),
		enabled:  botToken != "" && chatID != "",
		location: utils.LoadLocation(timezone),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}
}

var _ domain.AlertNotifier = (*NotificationService)(nil)

// Enabled reports whether messages are actually sent
func (s *NotificationService) Enabled() bool {
	return s.enabled
}

// SendPriceAlert notifies that a symbol reached its target price
func (s *NotificationService) SendPriceAlert(ctx context.Context, alert domain.PriceAlert) error {
	if !s.enabled {
		return nil // Silently skip if Telegram is not configured
	}

	message := fmt.Sprintf(
		"🔔 *PRICE ALERT: %s*\n\n"+
			"%s reached your target price\n"+
			"━━━━━━━━━━━━━━━━━\n"+
			"🎯 Target: `$%s`\n"+
			"📊 Current: `$%s`\n"+
			"👤 User: `%s`\n"+
			"🕒 Time: `%s`",
		alert.Symbol,
		alert.Symbol,
		alert.TargetPrice.StringFixed(2),
		alert.CurrentPrice.StringFixed(2),
		alert.UserID,
		s.now().In(s.location).Format("2006-01-02 15:04:05"),
	)

	return s.sendMessage(ctx, message)
}

// sendMessage sends a message to Telegram using the Bot API
func (s *NotificationService) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.botToken)

	payload := telegramMessage{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w: %w", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (status %d): %s: %w", resp.StatusCode, string(body), domain.ErrRemoteUnavailable)
	}

	s.logger.Debug("telegram message sent", zap.Int("length", len(text)))
	return nil
}
