package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "dinero/internal/errors"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends budget alerts to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	token  string
	chatID string
	base   string
	client *http.Client
}

// NewTelegramNotifier creates a TelegramNotifier for the given bot token
// and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		base:   telegramAPIBase,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send implements Notifier.
func (n *TelegramNotifier) Send(budgetID, title, body string, severity Severity) error {
	text := fmt.Sprintf("%s\n%s", title, body)

	payload, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: text})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotifyFailed, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.base, n.token)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotifyFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Wrap(apperrors.ErrNotifyFailed,
			fmt.Errorf("telegram API returned status %d", resp.StatusCode))
	}
	return nil
}
