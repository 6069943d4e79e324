package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/leonelquinteros/gotext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"

	"pricewatch-telegram-bot/config"
	"pricewatch-telegram-bot/internal/alert"
	"pricewatch-telegram-bot/internal/alertstore"
	"pricewatch-telegram-bot/internal/database"
	"pricewatch-telegram-bot/internal/metrics"
	"pricewatch-telegram-bot/internal/price"
	"pricewatch-telegram-bot/internal/render"
	"pricewatch-telegram-bot/internal/telegram"
	"pricewatch-telegram-bot/internal/upstream"
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	gotext.Configure("locales", strings.ToLower(config.GetString("lang")), "default")

	db, err := database.Open(config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	loadMetricsFromDB(db)

	client := upstream.NewClient(config.GetString("exchange_base_url"))
	snapshot := price.NewSnapshot(client, config.GetDuration("snapshot_ttl"))
	resolver := price.NewResolver(client, snapshot, config.GetDuration("resolver_ttl"))

	store := alertstore.New(db, config.GetDuration("snapshot_ttl"))
	renderer := render.New(store, resolver, db, config.GetInt("page_size"))

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, store, renderer, resolver)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	matcher := alert.NewMatcher(store, resolver, bot, config.GetDuration("matcher_interval"))
	if err := matcher.Start(); err != nil {
		log.Fatalf("Failed to start alert matcher: %v", err)
	}
	defer matcher.Stop()

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	go handleUpdates(bot, updates)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			saveMetricsToDB(db)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		matcher.Stop()
		saveMetricsToDB(db)
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
		log.Fatalf("Failed to start metrics and health server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting telegram bot...")
}

func handleUpdates(bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.CallbackQuery != nil {
			bot.HandleCallbackQuery(update.CallbackQuery)
			continue
		}

		if update.Message == nil {
			log.Debug("Received non-message or non-command")
			continue
		}

		if !update.Message.IsCommand() {
			continue
		}

		metrics.MessagesHandled.Inc()
		handleCommand(bot, update)
	}
}

func handleCommand(bot *telegram.Bot, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	text := bot.HandleUpdate(update)
	if text == "" {
		// The handler already sent its own messages.
		metrics.CommandsProcessed.Inc()
		return
	}

	err := bot.SendMessage(telegram.Message{
		ChatID:    update.Message.Chat.ID,
		Text:      text,
		MessageID: update.Message.MessageID,
	})

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	} else {
		metrics.CommandsProcessed.Inc()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}

var persistedCounters = map[string]prometheus.Counter{
	"commands_processed": metrics.CommandsProcessed,
	"messages_handled":   metrics.MessagesHandled,
	"alerts_fired":       metrics.AlertsFired,
}

func loadMetricsFromDB(db *database.DB) {
	for name, counter := range persistedCounters {
		value, err := db.GetMetric(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}
	log.Println("Metrics loaded from database.")
}

func saveMetricsToDB(db *database.DB) {
	for name, counter := range persistedCounters {
		if err := db.SaveMetric(name, getMetricValue(counter)); err != nil {
			log.Errorf("Failed to save metric %s: %v", name, err)
		}
	}
	log.Println("Metrics saved to database.")
}

func getMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		return metricProto.Counter.GetValue()
	}
	if metricProto.Gauge != nil {
		return metricProto.Gauge.GetValue()
	}
	return 0
}
