package render

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"pricewatch-telegram-bot/internal/types"
	"pricewatch-telegram-bot/lib/helpers"
	"pricewatch-telegram-bot/lib/translation"
)

// PageAll is the page token meaning "unscoped, show everything".
const PageAll = -1

// AlertSource is what the renderer needs from the alert store.
type AlertSource interface {
	ListForChat(chatID int64) ([]types.Alert, error)
}

// PriceSource is what the renderer needs from the price layer.
// PriceFast avoids blocking network calls where possible; Resolve is
// the authoritative path used by the reconcile pass.
type PriceSource interface {
	PriceFast(ctx context.Context, symbol string) (float64, bool)
	Resolve(ctx context.Context, symbol string) (float64, bool)
}

// ViewStore persists the last price shown to a chat per symbol.
type ViewStore interface {
	LastViewed(chatID int64, symbol string) (float64, bool, error)
	SetLastViewed(chatID int64, symbol string, price float64) error
}

// Button is one inline keyboard button: a label and callback data.
type Button struct {
	Label string
	Data  string
}

// View is a rendered message plus its inline keyboard.
type View struct {
	Text     string
	Keyboard [][]Button
}

// Renderer builds paginated alert listings and the parallel delete
// menu. Views render optimistically from cached prices first; the
// caller re-renders with fast=false afterwards and replaces the shown
// content in place.
type Renderer struct {
	store    AlertSource
	prices   PriceSource
	views    ViewStore
	pageSize int
}

func New(store AlertSource, prices PriceSource, views ViewStore, pageSize int) *Renderer {
	return &Renderer{store: store, prices: prices, views: views, pageSize: pageSize}
}

// PageCount returns how many pages n alerts occupy. An empty list
// still has one (empty) page.
func (r *Renderer) PageCount(n int) int {
	if n == 0 {
		return 1
	}
	return (n + r.pageSize - 1) / r.pageSize
}

// ClampPage forces page into [0, totalPages-1]. PageAll passes through.
func ClampPage(page, totalPages int) int {
	if page == PageAll {
		return PageAll
	}
	if page >= totalPages {
		page = totalPages - 1
	}
	if page < 0 {
		page = 0
	}
	return page
}

// AlertsPage renders one page of the chat's alerts with current
// prices, distance to target and movement since the chat last looked.
func (r *Renderer) AlertsPage(ctx context.Context, chatID int64, page int, fast bool) (View, error) {
	alerts, err := r.store.ListForChat(chatID)
	if err != nil {
		return View{}, err
	}
	if len(alerts) == 0 {
		return View{Text: translation.Translate("You have no active alerts\\.")}, nil
	}

	totalPages := r.PageCount(len(alerts))
	page = ClampPage(page, totalPages)
	entries := r.slicePage(alerts, page)

	var b strings.Builder
	b.WriteString(fmt.Sprintf(translation.Translate("🔔 *Your alerts* \\(page %d of %d\\)\n\n"), page+1, totalPages))
	for _, a := range entries {
		b.WriteString(r.renderEntry(ctx, chatID, a, fast))
	}

	return View{Text: b.String(), Keyboard: pageButtons("alerts_page", page, totalPages)}, nil
}

// DeleteMenu renders one delete button per alert. page scopes the menu
// to that listing page; PageAll shows every alert. The page token is
// carried in the callback data so the post-delete view can be rebuilt
// and clamped against the shrunken list.
func (r *Renderer) DeleteMenu(ctx context.Context, chatID int64, page int, fast bool) (View, error) {
	alerts, err := r.store.ListForChat(chatID)
	if err != nil {
		return View{}, err
	}
	if len(alerts) == 0 {
		return View{Text: translation.Translate("You have no active alerts\\.")}, nil
	}

	totalPages := r.PageCount(len(alerts))
	page = ClampPage(page, totalPages)

	entries := alerts
	token := "all"
	text := translation.Translate("Select an alert to delete:")
	if page != PageAll {
		entries = r.slicePage(alerts, page)
		token = fmt.Sprintf("%d", page)
		text = fmt.Sprintf(translation.Translate("Select an alert to delete \\(page %d of %d\\):"), page+1, totalPages)
	}

	var keyboard [][]Button
	for _, a := range entries {
		target, _ := a.Target.Float64()
		label := fmt.Sprintf("❌ %s %s $%s", a.Symbol, a.Condition, helpers.FormatPriceUS(target, false))
		if a.Kind == types.KindStopLoss {
			label = fmt.Sprintf("❌ %s stop-loss $%s", a.Symbol, helpers.FormatPriceUS(target, false))
		}
		keyboard = append(keyboard, []Button{{
			Label: label,
			Data:  fmt.Sprintf("delalert|%d|%s", a.ID, token),
		}})
	}
	if page != PageAll {
		if nav := pageButtons("delmenu", page, totalPages); len(nav) > 0 {
			keyboard = append(keyboard, nav...)
		}
	}

	return View{Text: text, Keyboard: keyboard}, nil
}

// renderEntry renders one alert line. When a real price was resolved
// it also records it as the chat's last-viewed price for the symbol.
func (r *Renderer) renderEntry(ctx context.Context, chatID int64, a types.Alert, fast bool) string {
	target, _ := a.Target.Float64()

	kindWord := translation.Translate("alert")
	if a.Kind == types.KindStopLoss {
		kindWord = translation.Translate("stop\\-loss")
	}

	head := fmt.Sprintf("▫️ *%s* %s %s *$%s*",
		helpers.EscapeMarkdownV2(a.Symbol),
		kindWord,
		helpers.EscapeMarkdownV2(string(a.Condition)),
		helpers.FormatPriceUS(target, true),
	)

	price, ok := r.price(ctx, a.Symbol, fast)
	if !ok {
		return fmt.Sprintf("%s\n   %s · %s\n",
			head,
			translation.Translate("price unavailable"),
			helpers.EscapeMarkdownV2(humanize.Time(a.CreatedAt)),
		)
	}

	toTarget := (target - price) / price * 100
	line := fmt.Sprintf("%s\n   %s *$%s* \\(%s %s\\)",
		head,
		translation.Translate("now"),
		helpers.FormatPriceUS(price, true),
		helpers.FormatPercentage(toTarget),
		translation.Translate("to target"),
	)

	if last, seen, err := r.views.LastViewed(chatID, a.Symbol); err != nil {
		log.Debugf("could not read last viewed price for chat %d %s: %v", chatID, a.Symbol, err)
	} else if seen && last > 0 && !math.IsInf(last, 0) && !math.IsNaN(last) {
		change := (price - last) / last * 100
		line += fmt.Sprintf(" · %s %s", helpers.FormatPercentage(change), translation.Translate("since last view"))
	}

	if err := r.views.SetLastViewed(chatID, a.Symbol, price); err != nil {
		log.Debugf("could not save last viewed price for chat %d %s: %v", chatID, a.Symbol, err)
	}

	return line + fmt.Sprintf(" · %s\n", helpers.EscapeMarkdownV2(humanize.Time(a.CreatedAt)))
}

func (r *Renderer) price(ctx context.Context, symbol string, fast bool) (float64, bool) {
	if fast {
		return r.prices.PriceFast(ctx, symbol)
	}
	return r.prices.Resolve(ctx, symbol)
}

func (r *Renderer) slicePage(alerts []types.Alert, page int) []types.Alert {
	start := page * r.pageSize
	if start >= len(alerts) {
		return nil
	}
	end := start + r.pageSize
	if end > len(alerts) {
		end = len(alerts)
	}
	return alerts[start:end]
}

func pageButtons(action string, page, totalPages int) [][]Button {
	var row []Button
	if page > 0 {
		row = append(row, Button{
			Label: translation.Translate("⬅️ Prev"),
			Data:  fmt.Sprintf("%s|%d", action, page-1),
		})
	}
	if page < totalPages-1 {
		row = append(row, Button{
			Label: translation.Translate("Next ➡️"),
			Data:  fmt.Sprintf("%s|%d", action, page+1),
		})
	}
	if len(row) == 0 {
		return nil
	}
	return [][]Button{row}
}
