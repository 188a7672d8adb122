package node

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/warpwallet/config"
	"github.com/Klingon-tech/warpwallet/internal/rpc"
	"github.com/Klingon-tech/warpwallet/internal/rpcclient"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.warpwallet/warpwallet.log", filepath.Join(home, ".warpwallet/warpwallet.log")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCoinConfig(t *testing.T) {
	cfg := config.DefaultMainnet()
	cfg.Wallet.GapLimit = 7
	cfg.Wallet.MarginalFee = 1234
	cfg.Wallet.Workers = 3

	c := coinConfig(cfg, config.CoinSpec{ID: 4, Name: "zec", CoinType: 133})
	if c.ID != 4 || c.Name != "zec" || c.CoinType != 133 {
		t.Errorf("identity = %d %s %d", c.ID, c.Name, c.CoinType)
	}
	if c.GapLimit != 7 || c.Workers != 3 {
		t.Errorf("gap = %d workers = %d", c.GapLimit, c.Workers)
	}
	if c.FeeRule.MarginalFee != 1234 {
		t.Errorf("marginal fee = %d, want 1234", c.FeeRule.MarginalFee)
	}
	if c.MempoolSize != cfg.Mempool.MaxSize {
		t.Errorf("mempool size = %d, want %d", c.MempoolSize, cfg.Mempool.MaxSize)
	}
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultRegtest()
	cfg.DataDir = dir
	cfg.RPC.Port = 0
	cfg.RPC.AllowedIPs = nil
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.Log.File = filepath.Join(dir, "test.log")

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		n.Stop()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(n.Stop)
	return n
}

func TestNode_RegtestDaemon(t *testing.T) {
	n := newTestNode(t)
	if _, ok := n.Miner(1); !ok {
		t.Fatal("regtest coin has no development chain")
	}
	client := rpcclient.New("http://" + n.RPCAddr() + "/")

	var coins []rpc.CoinResult
	if err := client.Call("wallet_listCoins", nil, &coins); err != nil {
		t.Fatalf("wallet_listCoins: %v", err)
	}
	if len(coins) != 1 || coins[0].ID != 1 || coins[0].CoinType != 1 {
		t.Fatalf("coins = %+v", coins)
	}

	var acc rpc.AccountResult
	if err := client.Call("wallet_createAccount", rpc.CreateAccountParam{Coin: 1, Name: "main", Birth: 1}, &acc); err != nil {
		t.Fatalf("wallet_createAccount: %v", err)
	}
	if acc.Phrase == "" {
		t.Fatal("generated phrase not returned")
	}
	var addr rpc.AddressResult
	if err := client.Call("wallet_newAddress", rpc.NewAddressParam{Coin: 1, Account: acc.ID}, &addr); err != nil {
		t.Fatalf("wallet_newAddress: %v", err)
	}
	if err := client.Call("regtest_fund", rpc.FundParam{Coin: 1, Address: addr.Address, Amount: "1.5"}, nil); err != nil {
		t.Fatalf("regtest_fund: %v", err)
	}
	if err := client.Call("regtest_mine", rpc.MineParam{Coin: 1}, nil); err != nil {
		t.Fatalf("regtest_mine: %v", err)
	}
	var h rpc.HeightResult
	if err := client.Call("wallet_scan", rpc.ScanParam{Coin: 1}, &h); err != nil {
		t.Fatalf("wallet_scan: %v", err)
	}
	var bal rpc.BalanceResult
	if err := client.Call("wallet_getBalance", rpc.BalanceParam{Coin: 1, Account: acc.ID}, &bal); err != nil {
		t.Fatalf("wallet_getBalance: %v", err)
	}
	if bal.Amount != "1.50000000" {
		t.Fatalf("balance = %+v", bal)
	}
}

func TestNode_Metrics(t *testing.T) {
	n := newTestNode(t)
	if n.MetricsAddr() == "" {
		t.Fatal("metrics endpoint not started")
	}

	resp, err := http.Get("http://" + n.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "warpwallet_scanner_height") {
		t.Error("scanner metrics not exported")
	}
}
