// Package config handles application configuration.
//
// Settings come from three layers, later ones winning: network defaults,
// the key = value config file in the data directory, and command-line
// flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies the chain the wallet follows.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	// Regtest runs an in-process development chain.
	Regtest NetworkType = "regtest"
)

// =============================================================================
// Wallet daemon configuration
// =============================================================================

// Config holds the wallet daemon configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// RPC server
	RPC RPCConfig

	// Upstream node serving blocks and relaying transactions
	Node NodeConfig

	// Wallet core settings, shared by every coin
	Wallet WalletConfig

	// Mempool polling
	Mempool MempoolConfig

	// Prometheus metrics endpoint
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// NodeConfig points at the node the wallet scans. An empty URL on regtest
// uses the in-process chain.
type NodeConfig struct {
	URL     string        `conf:"node.url"`
	Timeout time.Duration `conf:"node.timeout"`
}

// WalletConfig holds wallet core settings.
type WalletConfig struct {
	// Coins lists the coins to open as "id:name[:cointype]".
	Coins              []string      `conf:"wallet.coins"`
	GapLimit           uint32        `conf:"wallet.gap_limit"`
	CheckpointInterval uint32        `conf:"wallet.checkpoint_interval"`
	MinConfirmations   uint32        `conf:"wallet.min_confirmations"`
	MarginalFee        uint64        `conf:"wallet.marginal_fee"`
	ExpiryDelta        uint32        `conf:"wallet.expiry_delta"`
	Workers            int           `conf:"wallet.workers"` // 0 = GOMAXPROCS
	ScanInterval       time.Duration `conf:"wallet.scan_interval"`
}

// MempoolConfig holds mempool tracking settings.
type MempoolConfig struct {
	Enabled      bool          `conf:"mempool.enabled"`
	PollInterval time.Duration `conf:"mempool.poll_interval"`
	MaxSize      int           `conf:"mempool.max_size"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.warpwallet
//	macOS:   ~/Library/Application Support/Warpwallet
//	Windows: %APPDATA%\Warpwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warpwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Warpwallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Warpwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Warpwallet")
	default:
		return filepath.Join(home, ".warpwallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// WalletDir returns the wallet database directory.
func (c *Config) WalletDir() string {
	return filepath.Join(c.NetworkDataDir(), "wallet")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the per-network config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.NetworkDataDir(), "warpwallet.conf")
}
