package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Node
	case "node.url":
		cfg.Node.URL = value
	case "node.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Node.Timeout = d

	// Wallet
	case "wallet.coins":
		cfg.Wallet.Coins = parseStringList(value)
	case "wallet.gap_limit":
		return parseUint32(value, &cfg.Wallet.GapLimit)
	case "wallet.checkpoint_interval":
		return parseUint32(value, &cfg.Wallet.CheckpointInterval)
	case "wallet.min_confirmations":
		return parseUint32(value, &cfg.Wallet.MinConfirmations)
	case "wallet.expiry_delta":
		return parseUint32(value, &cfg.Wallet.ExpiryDelta)
	case "wallet.marginal_fee":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Wallet.MarginalFee = n
	case "wallet.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Wallet.Workers = n
	case "wallet.scan_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Wallet.ScanInterval = d

	// Mempool
	case "mempool.enabled", "mempool":
		cfg.Mempool.Enabled = parseBool(value)
	case "mempool.poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Mempool.PollInterval = d
	case "mempool.max_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mempool.MaxSize = n

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)
	case "metrics.addr":
		cfg.Metrics.Addr = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func parseUint32(s string, dst *uint32) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return err
	}
	*dst = uint32(n)
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	node := "# node.url = http://127.0.0.1:" + strconv.Itoa(d.RPC.Port)
	if network != Regtest {
		node = "node.url = "
	}
	content := `# Warpwallet Configuration

# Network: mainnet, testnet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.warpwallet)
# datadir = ~/.warpwallet

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(d.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Upstream node
# ============================================================================

# JSON-RPC endpoint serving compact blocks. On regtest an empty URL runs
# the development chain in process.
` + node + `
node.timeout = ` + d.Node.Timeout.String() + `

# ============================================================================
# Wallet
# ============================================================================

# Coins to open, comma-separated id:name[:cointype]
wallet.coins = ` + strings.Join(d.Wallet.Coins, ",") + `
wallet.gap_limit = ` + strconv.FormatUint(uint64(d.Wallet.GapLimit), 10) + `
wallet.checkpoint_interval = ` + strconv.FormatUint(uint64(d.Wallet.CheckpointInterval), 10) + `
wallet.min_confirmations = ` + strconv.FormatUint(uint64(d.Wallet.MinConfirmations), 10) + `
wallet.marginal_fee = ` + strconv.FormatUint(d.Wallet.MarginalFee, 10) + `
wallet.expiry_delta = ` + strconv.FormatUint(uint64(d.Wallet.ExpiryDelta), 10) + `
wallet.scan_interval = ` + d.Wallet.ScanInterval.String() + `
# Trial decryption workers (0 = one per CPU)
# wallet.workers = 0

# ============================================================================
# Mempool
# ============================================================================

mempool.enabled = true
mempool.poll_interval = ` + d.Mempool.PollInterval.String() + `
# mempool.max_size = 5000

# ============================================================================
# Metrics
# ============================================================================

metrics.enabled = false
metrics.addr = ` + d.Metrics.Addr + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
