package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/veridesk/platform/internal/logger"
	"github.com/veridesk/platform/internal/types/interfaces"
)

// telegramAPIBase is the fixed Telegram Bot API host; only the bot token
// segment varies per tenant.
const telegramAPIBase = "https://api.telegram.org"

// TelegramSender sends replies through the Telegram Bot API. SetHumanHandoff
// is a no-op: Telegram chats have no server-side status to toggle.
type TelegramSender struct {
	botToken string
	client   *http.Client
}

var _ interfaces.ChannelSender = (*TelegramSender)(nil)

// NewTelegramSender builds a sender bound to one bot token.
func NewTelegramSender(botToken string, timeout time.Duration) *TelegramSender {
	return &TelegramSender{botToken: botToken, client: &http.Client{Timeout: timeout}}
}

type telegramSendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendText posts {chat_id, text, parse_mode:"Markdown"} to
// bot{token}/sendMessage. externalID is the chat id, carried as a string
// since Telegram chat ids exceed int32 range for some group chats.
func (s *TelegramSender) SendText(ctx context.Context, externalID, text string) error {
	body, err := json.Marshal(telegramSendMessageRequest{
		ChatID:    externalID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Errorf(ctx, "[Telegram] sendMessage failed: status=%d body=%s", resp.StatusCode, respBody)
		return fmt.Errorf("telegram sendMessage returned status %d", resp.StatusCode)
	}
	return nil
}

// SetHumanHandoff is a no-op for Telegram.
func (s *TelegramSender) SetHumanHandoff(ctx context.Context, externalID string, requiresHuman bool) error {
	return nil
}

// ChatIDFromInt64 formats a Telegram numeric chat id the way the webhook
// normalizer extracts it from message.chat.id.
func ChatIDFromInt64(id int64) string {
	return strconv.FormatInt(id, 10)
}
