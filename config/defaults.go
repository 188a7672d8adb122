package config

import (
	"time"

	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
)

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       9067,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Node: NodeConfig{
			Timeout: 30 * time.Second,
		},
		Wallet: WalletConfig{
			Coins:              []string{"1:zec:133"},
			GapLimit:           20,
			CheckpointInterval: 1,
			MinConfirmations:   1,
			MarginalFee:        tx.DefaultMarginalFee,
			ExpiryDelta:        pay.DefaultExpiryDelta,
			ScanInterval:       10 * time.Second,
		},
		Mempool: MempoolConfig{
			Enabled:      true,
			PollInterval: 5 * time.Second,
			MaxSize:      5000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9100",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Port = 19067
	cfg.Wallet.Coins = []string{"1:zec:1"}
	return cfg
}

// DefaultRegtest returns the default configuration for the development
// chain. Confirmations and polling are tightened for fast feedback.
func DefaultRegtest() *Config {
	cfg := DefaultTestnet()
	cfg.Network = Regtest
	cfg.RPC.Port = 29067
	cfg.Wallet.ScanInterval = time.Second
	cfg.Mempool.PollInterval = time.Second
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
