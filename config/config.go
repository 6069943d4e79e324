package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("exchange_base_url", "EXCHANGE_BASE_URL")
		viper.BindEnv("snapshot_ttl", "SNAPSHOT_TTL")
		viper.BindEnv("resolver_ttl", "RESOLVER_TTL")
		viper.BindEnv("matcher_interval", "MATCHER_INTERVAL")
		viper.BindEnv("page_size", "PAGE_SIZE")

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("db_path", "/app/data/bot.db")
		viper.SetDefault("exchange_base_url", "https://api.kucoin.com")
		viper.SetDefault("snapshot_ttl", "30s")
		viper.SetDefault("resolver_ttl", "10s")
		viper.SetDefault("matcher_interval", "60s")
		viper.SetDefault("page_size", 20)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
