// Package config содержит логику чтения конфигурации сервиса пресейла.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса пресейла WUSLE.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	SolanaRPCAddress    string `env:"SOLANA_RPC_ADDRESS"`
	TreasuryAddress     string `env:"TREASURY_ADDRESS"`
	TreasuryUSDTAccount string `env:"TREASURY_USDT_ACCOUNT"`
	USDTMint            string `env:"USDT_MINT"`
	USDTDecimals        int    `env:"USDT_DECIMALS"`
	TotalWusleSupply    string `env:"TOTAL_WUSLE_SUPPLY"`
	LiquidityAtLaunch   string `env:"LIQUIDITY_AT_LAUNCH"`
	// SOLPriceUSD задаёт курс пересчёта платежей в SOL в долларовый
	// эквивалент для учёта сбора этапа.
	SOLPriceUSD float64 `env:"SOL_PRICE_USD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRPCAddress := cfg.SolanaRPCAddress
	envTreasury := cfg.TreasuryAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SolanaRPCAddress, "r", "", "solana RPC node address")
	flag.StringVar(&cfg.TreasuryAddress, "t", "", "presale treasury wallet address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRPCAddress != "" {
		cfg.SolanaRPCAddress = envRPCAddress
	}
	if envTreasury != "" {
		cfg.TreasuryAddress = envTreasury
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.USDTMint == "" {
		cfg.USDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	}
	if cfg.USDTDecimals <= 0 {
		cfg.USDTDecimals = 6
	}
	if cfg.TotalWusleSupply == "" {
		cfg.TotalWusleSupply = "1,000,000,000 WUSLE"
	}
	if cfg.LiquidityAtLaunch == "" {
		cfg.LiquidityAtLaunch = "$2,000,000"
	}

	return cfg, nil
}
