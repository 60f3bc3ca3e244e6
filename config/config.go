package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port int64  `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"server" json:"server"`

	Database struct {
		DSN string `mapstructure:"dsn" json:"dsn,omitempty"`
	} `mapstructure:"database" json:"database,omitempty"`

	Redis struct {
		Host     string `mapstructure:"host" json:"host,omitempty"`
		Port     string `mapstructure:"port" json:"port,omitempty"`
		User     string `mapstructure:"user" json:"user,omitempty"`
		Password string `mapstructure:"password" json:"password,omitempty"`
		DB       int    `mapstructure:"db" json:"db,omitempty"`
	} `mapstructure:"redis" json:"redis,omitempty"`

	Scheduler struct {
		BaseFee               uint64            `mapstructure:"base_fee" json:"base_fee,omitempty"`
		PerBudgetUnitFee      uint64            `mapstructure:"per_budget_unit_fee" json:"per_budget_unit_fee,omitempty"`
		PriorityMultiplierBps map[string]uint64 `mapstructure:"priority_multiplier_bps" json:"priority_multiplier_bps,omitempty"`
	} `mapstructure:"scheduler" json:"scheduler,omitempty"`

	Exchange struct {
		// Rates keys are "SOURCE/TARGET"; each entry fixes how much target
		// one amount_in of source converts to.
		Rates map[string]struct {
			AmountIn  uint64 `mapstructure:"amount_in" json:"amount_in,omitempty"`
			AmountOut uint64 `mapstructure:"amount_out" json:"amount_out,omitempty"`
		} `mapstructure:"rates" json:"rates,omitempty"`
	} `mapstructure:"exchange" json:"exchange,omitempty"`

	CrossDomain struct {
		RPCURL          string `mapstructure:"rpc_url" json:"rpc_url,omitempty"`
		ExecutorKey     string `mapstructure:"executor_key" json:"executor_key,omitempty"`
		BridgeContract  string `mapstructure:"bridge_contract" json:"bridge_contract,omitempty"`
		PrimaryRouter   string `mapstructure:"primary_router" json:"primary_router,omitempty"`
		FallbackRouter  string `mapstructure:"fallback_router" json:"fallback_router,omitempty"`
		Quoter          string `mapstructure:"quoter" json:"quoter,omitempty"`
		WrappedNative   string `mapstructure:"wrapped_native" json:"wrapped_native,omitempty"`
		Recipient       string `mapstructure:"recipient" json:"recipient,omitempty"`
		DefaultFeeTier  uint32 `mapstructure:"default_fee_tier" json:"default_fee_tier,omitempty"`
		SwapGasLimit    uint64 `mapstructure:"swap_gas_limit" json:"swap_gas_limit,omitempty"`
		ApproveGasLimit uint64 `mapstructure:"approve_gas_limit" json:"approve_gas_limit,omitempty"`
		BridgeFee       uint64 `mapstructure:"bridge_fee" json:"bridge_fee,omitempty"`
		DeadlineSeconds uint64 `mapstructure:"deadline_seconds" json:"deadline_seconds,omitempty"`

		// Assets maps local asset ids to their foreign representation.
		Assets map[string]struct {
			Address  string `mapstructure:"address" json:"address,omitempty"`
			Decimals uint8  `mapstructure:"decimals" json:"decimals,omitempty"`
			Native   bool   `mapstructure:"native" json:"native,omitempty"`
		} `mapstructure:"assets" json:"assets,omitempty"`
	} `mapstructure:"cross_domain" json:"cross_domain,omitempty"`

	QuoteCacheTTLSeconds uint64 `mapstructure:"quote_cache_ttl_seconds" json:"quote_cache_ttl_seconds,omitempty"`

	Datadog struct {
		Host string `mapstructure:"host" json:"host,omitempty"`
		Port string `mapstructure:"port" json:"port,omitempty"`
	} `mapstructure:"datadog" json:"datadog"`
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("DCA_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}

	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("quote_cache_ttl_seconds", 15)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}
