// Package config содержит логику чтения конфигурации сервиса замены товаров.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/order-replacement/internal/model"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultAPIVersion = "2024-10"
	defaultStaffNote  = "Order edited by replacement workflow"
)

// Config содержит параметры конфигурации сервиса замены товаров.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	ShopDomain      string        `env:"SHOPIFY_SHOP_DOMAIN"`
	ShopAccessToken string        `env:"SHOPIFY_ACCESS_TOKEN"`
	ShopAPIVersion  string        `env:"SHOPIFY_API_VERSION" envDefault:"2024-10"`
	PlatformTimeout time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"10s"`

	ReconcileWorkers int    `env:"RECONCILE_WORKERS" envDefault:"1"`
	StaffNote        string `env:"STAFF_NOTE" envDefault:"Order edited by replacement workflow"`
	StaffSecret      string `env:"STAFF_SECRET"`

	EmailAPIURL string `env:"EMAIL_API_URL"`
	EmailAPIKey string `env:"EMAIL_API_KEY"`
	EmailFrom   string `env:"EMAIL_FROM"`

	Store model.Store `envPrefix:"STORE_"`
}

// FromEnv считывает конфигурацию только из переменных окружения.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envShopDomain := cfg.ShopDomain

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ShopDomain, "s", "", "shop domain of the order platform")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envShopDomain != "" {
		cfg.ShopDomain = envShopDomain
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.ShopAPIVersion == "" {
		c.ShopAPIVersion = defaultAPIVersion
	}
	if c.StaffNote == "" {
		c.StaffNote = defaultStaffNote
	}
	if c.ReconcileWorkers < 1 {
		c.ReconcileWorkers = 1
	}
}

// Validate проверяет значения, без которых сервис работает некорректно.
func (c *Config) Validate() error {
	if c.Store.ExpirationHours <= 0 {
		return fmt.Errorf("store expiration hours must be positive, got %d", c.Store.ExpirationHours)
	}
	if c.PlatformTimeout <= 0 {
		return fmt.Errorf("platform timeout must be positive, got %s", c.PlatformTimeout)
	}
	return nil
}
