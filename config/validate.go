package config

import (
	"fmt"
)

// Validate checks the config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Network != Regtest && cfg.Node.URL == "" {
		return fmt.Errorf("node.url is required on %s", cfg.Network)
	}

	if cfg.Wallet.GapLimit == 0 {
		return fmt.Errorf("wallet.gap_limit must be positive")
	}
	if cfg.Wallet.CheckpointInterval == 0 {
		return fmt.Errorf("wallet.checkpoint_interval must be positive")
	}
	if cfg.Wallet.MarginalFee == 0 {
		return fmt.Errorf("wallet.marginal_fee must be positive")
	}
	if cfg.Wallet.Workers < 0 {
		return fmt.Errorf("wallet.workers must not be negative")
	}
	if cfg.Wallet.ScanInterval <= 0 {
		return fmt.Errorf("wallet.scan_interval must be positive")
	}
	if len(cfg.Wallet.Coins) == 0 {
		return fmt.Errorf("wallet.coins must name at least one coin")
	}
	if _, err := cfg.CoinSpecs(); err != nil {
		return err
	}

	if cfg.Mempool.Enabled && cfg.Mempool.PollInterval <= 0 {
		return fmt.Errorf("mempool.poll_interval must be positive")
	}
	if cfg.Mempool.MaxSize < 0 {
		return fmt.Errorf("mempool.max_size must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}
