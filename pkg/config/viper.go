// Package config initializes the application's configuration. It uses the
// Viper library to merge settings from a config file, environment variables,
// and defaults into one view.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cvsdeals/promocrawl/internal/logging"
)

// InitConfig sets defaults, search paths, and env binding. Called once at
// startup before any service reads configuration.
func InitConfig() {
	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/promocrawl/")
	viper.AddConfigPath("$HOME/.promocrawl")

	viper.SetDefault("log.development", false)
	viper.SetDefault("metrics.addr", ":8080")

	// Store. store.dsn has no default on purpose: missing credentials are
	// a startup-time fatal condition.
	viper.SetDefault("store.table", "products")
	viper.SetDefault("store.batch_size", 50)
	viper.SetDefault("store.deactivate_missing", false)
	viper.SetDefault("store.max_conns", 4)

	// Rendering.
	const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	viper.SetDefault("render.user_agent", defaultUA)
	viper.SetDefault("render.nav_timeout", "30s")
	viper.SetDefault("render.settle_timeout", "5s")
	viper.SetDefault("render.settle_poll", "250ms")
	viper.SetDefault("render.settle_quiet", "1500ms")
	viper.SetDefault("render.domain_qps", 0.5)
	viper.SetDefault("render.max_parallel", 2)

	// Sources.
	viper.SetDefault("pipeline.concurrency", 1)
	viper.SetDefault("sources.enabled", []string{"cu", "gs25", "seven_eleven"})
	viper.SetDefault("sources.cu.url", "https://cu.bgfretail.com/product/product.do?category=product&depth2=4&depth3=1")
	viper.SetDefault("sources.cu.max_more_clicks", 3)
	viper.SetDefault("sources.gs25.url", "http://gs25.gsretail.com/gscvs/ko/products/event-goods")
	viper.SetDefault("sources.gs25.max_pages", 3)
	viper.SetDefault("sources.seven_eleven.base_url", "https://www.7-eleven.co.kr")
	viper.SetDefault("sources.seven_eleven.page_size", 20)
	viper.SetDefault("sources.seven_eleven.max_pages", 5)

	viper.SetEnvPrefix("PROMOCRAWL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
