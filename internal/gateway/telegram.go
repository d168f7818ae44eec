package gateway

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMessageLimit = 4096

type TelegramGateway struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	return NewTelegramGatewayWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{})
}

// NewTelegramGatewayWithEndpoint talks to a non-default Bot API server.
func NewTelegramGatewayWithEndpoint(token, endpoint string, client *http.Client) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot}, nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, truncate(text, telegramMessageLimit))
	_, err = tg.Bot.Send(msg)
	return err
}
