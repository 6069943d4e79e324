package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pricewatch-telegram-bot/internal/alertstore"
	"pricewatch-telegram-bot/internal/price"
	"pricewatch-telegram-bot/internal/render"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
}

// Bot telegram interaction client
type Bot struct {
	Bot      *tgbotapi.BotAPI
	Config   BotConfig
	store    *alertstore.Store
	renderer *render.Renderer
	prices   *price.Resolver
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}
