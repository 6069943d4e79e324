package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"pricewatch-telegram-bot/internal/alertstore"
	"pricewatch-telegram-bot/internal/database"
	"pricewatch-telegram-bot/internal/price"
	"pricewatch-telegram-bot/internal/render"
	"pricewatch-telegram-bot/internal/types"
	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"
)

const requestTimeout = 30 * time.Second

// NewBot creates new telegram bot
func NewBot(c BotConfig, store *alertstore.Store, renderer *render.Renderer, prices *price.Resolver) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:      bot,
		Config:   c,
		store:    store,
		renderer: renderer,
		prices:   prices,
	}, nil
}

// GetUpdatesChannel gets new updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// Notify delivers a matcher notification to the owning chat.
func (b *Bot) Notify(chatID int64, text string) error {
	return b.SendMessage(Message{ChatID: chatID, Text: text})
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	text := translation.Translate("*Commands*\n/alert SYMBOL above\\|below PRICE \\[stop PRICE\\] — set an alert\n/alerts \\[page\\] — list your alerts\n/delalert — delete an alert")
	log.Debugf("received command: %s", u.Message.Command())

	chatID := u.Message.Chat.ID

	switch u.Message.Command() {
	case "alert":
		return b.handleCreateCommand(chatID, u.Message.CommandArguments())
	case "alerts":
		page := 0
		if arg := strings.TrimSpace(u.Message.CommandArguments()); arg != "" {
			if n, err := strconv.Atoi(arg); err == nil && n > 0 {
				page = n - 1
			}
		}
		b.sendAlertsPage(chatID, page)
		return ""
	case "delalert":
		b.sendDeleteMenu(chatID, render.PageAll)
		return ""
	}

	return text
}

// handleCreateCommand parses
//
//	/alert SYMBOL above|below PRICE [stop PRICE]
//
// and creates a standalone alert or an alert/stop-loss pair.
func (b *Bot) handleCreateCommand(chatID int64, args string) string {
	fields := strings.Fields(args)
	if len(fields) != 3 && len(fields) != 5 {
		return translation.Translate("Usage: /alert SYMBOL above\\|below PRICE \\[stop PRICE\\]")
	}

	symbol := strings.ToUpper(fields[0])
	condition := types.Condition(strings.ToLower(fields[1]))
	if condition != types.ConditionAbove && condition != types.ConditionBelow {
		return translation.Translate("The condition must be either `above` or `below`\\.")
	}

	target, err := decimal.NewFromString(fields[2])
	if err != nil || !target.IsPositive() {
		return translation.Translate("The target price must be a positive number\\.")
	}

	var stopTarget decimal.Decimal
	paired := len(fields) == 5
	if paired {
		if strings.ToLower(fields[3]) != "stop" {
			return translation.Translate("Usage: /alert SYMBOL above\\|below PRICE \\[stop PRICE\\]")
		}
		if stopTarget, err = decimal.NewFromString(fields[4]); err != nil || !stopTarget.IsPositive() {
			return translation.Translate("The stop\\-loss price must be a positive number\\.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	current, ok := b.prices.PriceFast(ctx, symbol)
	if !ok {
		return fmt.Sprintf(translation.Translate("Unknown symbol *%s*\\. Use the exchange notation, e\\.g\\. BTC\\-USDT\\."),
			helpers.EscapeMarkdownV2(symbol))
	}

	if paired {
		if _, _, err := b.store.CreatePair(chatID, symbol, condition, target, stopTarget); err != nil {
			log.Errorf("could not create paired alert for chat %d: %v", chatID, err)
			return translation.Translate("Failed to save alert\\. Please try again later\\.")
		}
	} else {
		if _, err := b.store.Create(chatID, symbol, condition, target); err != nil {
			log.Errorf("could not create alert for chat %d: %v", chatID, err)
			return translation.Translate("Failed to save alert\\. Please try again later\\.")
		}
	}

	targetFloat, _ := target.Float64()
	success := fmt.Sprintf(translation.Translate("✅ Alert set: *%s* %s *$%s*\nCurrent price: *$%s*"),
		helpers.EscapeMarkdownV2(symbol),
		helpers.EscapeMarkdownV2(string(condition)),
		helpers.FormatPriceUS(targetFloat, true),
		helpers.FormatPriceUS(current, true),
	)
	if paired {
		stopFloat, _ := stopTarget.Float64()
		success += fmt.Sprintf(translation.Translate("\n🛑 Stop\\-loss at *$%s*"), helpers.FormatPriceUS(stopFloat, true))
	}
	return success
}

// sendAlertsPage renders the page from cached prices, sends it right
// away and reconciles it with authoritative prices in the background.
func (b *Bot) sendAlertsPage(chatID int64, page int) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	view, err := b.renderer.AlertsPage(ctx, chatID, page, true)
	if err != nil {
		log.Errorf("could not render alerts page for chat %d: %v", chatID, err)
		b.SendMessage(Message{ChatID: chatID, Text: translation.Translate("Failed to fetch your alerts\\.")})
		return
	}

	sent, err := b.sendView(chatID, view)
	if err != nil {
		log.Errorf("could not send alerts page to chat %d: %v", chatID, err)
		return
	}

	go b.reconcile(chatID, sent.MessageID, view.Text, func(ctx context.Context) (render.View, error) {
		return b.renderer.AlertsPage(ctx, chatID, page, false)
	})
}

// sendDeleteMenu mirrors sendAlertsPage for the delete-action view.
func (b *Bot) sendDeleteMenu(chatID int64, page int) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	view, err := b.renderer.DeleteMenu(ctx, chatID, page, true)
	if err != nil {
		log.Errorf("could not render delete menu for chat %d: %v", chatID, err)
		b.SendMessage(Message{ChatID: chatID, Text: translation.Translate("Failed to fetch your alerts\\.")})
		return
	}

	sent, err := b.sendView(chatID, view)
	if err != nil {
		log.Errorf("could not send delete menu to chat %d: %v", chatID, err)
		return
	}

	go b.reconcile(chatID, sent.MessageID, view.Text, func(ctx context.Context) (render.View, error) {
		return b.renderer.DeleteMenu(ctx, chatID, page, false)
	})
}

// HandleCallbackQuery routes inline keyboard actions. Callback data is
// "action|arg|arg".
func (b *Bot) HandleCallbackQuery(callbackQuery *tgbotapi.CallbackQuery) {
	data := callbackQuery.Data
	chatID := callbackQuery.Message.Chat.ID
	messageID := callbackQuery.Message.MessageID

	switch {
	case strings.HasPrefix(data, "alerts_page|"):
		page, err := strconv.Atoi(strings.TrimPrefix(data, "alerts_page|"))
		if err != nil {
			b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Invalid page.")))
			return
		}
		b.editPage(chatID, messageID, page, false)
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, ""))

	case strings.HasPrefix(data, "delmenu|"):
		page, err := strconv.Atoi(strings.TrimPrefix(data, "delmenu|"))
		if err != nil {
			b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Invalid page.")))
			return
		}
		b.editPage(chatID, messageID, page, true)
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, ""))

	case strings.HasPrefix(data, "delalert|"):
		b.handleDeleteCallback(callbackQuery)

	default:
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Unknown action. Please try again.")))
	}
}

// handleDeleteCallback deletes the chosen alert and rebuilds the menu
// against the shrunken list, clamping any retained page index.
func (b *Bot) handleDeleteCallback(callbackQuery *tgbotapi.CallbackQuery) {
	chatID := callbackQuery.Message.Chat.ID
	messageID := callbackQuery.Message.MessageID

	parts := strings.Split(callbackQuery.Data, "|")
	if len(parts) != 3 {
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Invalid alert data.")))
		return
	}

	alertID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Invalid alert data.")))
		return
	}

	page := render.PageAll
	if parts[2] != "all" {
		if page, err = strconv.Atoi(parts[2]); err != nil {
			b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Invalid alert data.")))
			return
		}
	}

	_, err = b.store.Delete(alertID, types.ReasonUserDeleted)
	switch {
	case errors.Is(err, database.ErrNotFound):
		// Fired or deleted elsewhere in the meantime. Soft failure.
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("That alert is already gone.")))
	case err != nil:
		log.Errorf("could not delete alert %d: %v", alertID, err)
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Failed to delete the alert. Please try again later.")))
		return
	default:
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Alert deleted.")))
	}

	// The menu's page may no longer exist after the list shrank;
	// DeleteMenu clamps it into the valid range.
	b.editDeleteMenu(chatID, messageID, page)
}

func (b *Bot) editPage(chatID int64, messageID, page int, deleteMenu bool) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	rebuild := func(ctx context.Context, fast bool) (render.View, error) {
		if deleteMenu {
			return b.renderer.DeleteMenu(ctx, chatID, page, fast)
		}
		return b.renderer.AlertsPage(ctx, chatID, page, fast)
	}

	view, err := rebuild(ctx, true)
	if err != nil {
		log.Errorf("could not render page %d for chat %d: %v", page, chatID, err)
		return
	}
	if err := b.editView(chatID, messageID, view); err != nil {
		log.Debugf("could not edit message %d in chat %d: %v", messageID, chatID, err)
		return
	}

	go b.reconcile(chatID, messageID, view.Text, func(ctx context.Context) (render.View, error) {
		return rebuild(ctx, false)
	})
}

func (b *Bot) editDeleteMenu(chatID int64, messageID, page int) {
	b.editPage(chatID, messageID, page, true)
}

// reconcile recomputes a previously shown view with authoritative
// prices and updates it in place. If the message was replaced by a
// newer interaction the edit fails and the update is dropped silently.
func (b *Bot) reconcile(chatID int64, messageID int, shownText string, rebuild func(ctx context.Context) (render.View, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	view, err := rebuild(ctx)
	if err != nil {
		log.Debugf("reconcile render failed for chat %d: %v", chatID, err)
		return
	}
	if view.Text == shownText {
		return
	}
	if err := b.editView(chatID, messageID, view); err != nil {
		log.Debugf("reconcile edit dropped for chat %d message %d: %v", chatID, messageID, err)
	}
}

func (b *Bot) sendView(chatID int64, view render.View) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, view.Text)
	msg.ParseMode = "MarkdownV2"
	msg.DisableWebPagePreview = true
	if markup, ok := toMarkup(view); ok {
		msg.ReplyMarkup = markup
	}
	return b.Bot.Send(msg)
}

func (b *Bot) editView(chatID int64, messageID int, view render.View) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, view.Text)
	edit.ParseMode = "MarkdownV2"
	if markup, ok := toMarkup(view); ok {
		edit.ReplyMarkup = &markup
	}
	_, err := b.Bot.Send(edit)
	return err
}

func toMarkup(view render.View) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(view.Keyboard) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range view.Keyboard {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
