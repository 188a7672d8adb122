package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Klingon-tech/warpwallet/internal/boundary"
	"github.com/Klingon-tech/warpwallet/internal/coin"
	klog "github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/miner"
	"github.com/Klingon-tech/warpwallet/internal/rpc"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/lightningnetwork/lnd/clock"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type testEnv struct {
	client *Client
	miner  *miner.Miner
	clock  *clock.TestClock
}

// setupTestEnv serves a development chain as coin 1 over RPC.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	clk := clock.NewTestClock(time.Unix(1700000000, 0))
	m := miner.New(clk, tx.DefaultFeeRule())

	srv := rpc.New("127.0.0.1:0")
	srv.SetMiner(1, m)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client: New(fmt.Sprintf("http://%s/", srv.Addr())),
		miner:  m,
		clock:  clk,
	}
}

func TestClient_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)
	if err := env.miner.Mine(2); err != nil {
		t.Fatal(err)
	}

	var info rpc.ChainInfoResult
	if err := env.client.Call("chain_getInfo", nil, &info); err != nil {
		t.Fatalf("chain_getInfo: %v", err)
	}
	if info.Coin != 1 || info.Height != 2 {
		t.Errorf("info = %+v", info)
	}
}

func TestClient_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
	if rpcErr.Unwrap() != nil {
		t.Errorf("protocol error unwraps to %v", rpcErr.Unwrap())
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	c := NewWithTimeout("http://127.0.0.1:1/", time.Second)
	if err := c.Call("chain_getInfo", nil, nil); err == nil {
		t.Fatal("expected error for refused connection")
	}
}

func TestClient_CallContextCanceled(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := env.client.CallContext(ctx, "chain_getInfo", nil, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSource_ChainCalls(t *testing.T) {
	env := setupTestEnv(t)
	if err := env.miner.Mine(3); err != nil {
		t.Fatal(err)
	}
	src := NewSource(env.client, 1)
	ctx := context.Background()

	tip, err := src.Tip(ctx)
	if err != nil || tip != 3 {
		t.Fatalf("Tip() = %d, %v", tip, err)
	}

	blk, err := src.Block(ctx, 2)
	if err != nil {
		t.Fatalf("Block(2): %v", err)
	}
	want, _ := env.miner.Block(ctx, 2)
	if blk.Hash() != want.Hash() {
		t.Errorf("block hash = %s, want %s", blk.Hash(), want.Hash())
	}

	st, err := src.TreeState(ctx, 2)
	if err != nil {
		t.Fatalf("TreeState(2): %v", err)
	}
	if st.Hash != want.Hash() {
		t.Errorf("tree state hash = %s, want %s", st.Hash, want.Hash())
	}

	if _, err := src.Block(ctx, 9); err == nil {
		t.Error("Block(9) succeeded past the tip")
	}

	pending, err := src.Pending(ctx)
	if err != nil || len(pending) != 0 {
		t.Errorf("Pending() = %d, %v", len(pending), err)
	}
}

func TestSource_BroadcastRejectedKind(t *testing.T) {
	env := setupTestEnv(t)
	src := NewSource(env.client, 1)

	_, err := src.Broadcast(context.Background(), []byte{0xde, 0xad})
	if !errors.Is(err, walleterr.ErrBroadcastRejected) {
		t.Fatalf("err = %v, want ErrBroadcastRejected", err)
	}
	if k := walleterr.KindOf(err); k != walleterr.KindBroadcastRejected {
		t.Errorf("kind = %s, want %s", k, walleterr.KindBroadcastRejected)
	}
}

// TestSource_RemoteWallet scans and pays through a node reached over RPC.
func TestSource_RemoteWallet(t *testing.T) {
	env := setupTestEnv(t)
	src := NewSource(env.client, 1)
	ctx := context.Background()

	w := boundary.New(coin.NewRegistry(storage.NewMemory()))
	cfg := coin.DefaultConfig(1, "zec")
	cfg.GapLimit = 5
	cfg.Clock = env.clock
	if r := w.OpenCoin(cfg, src); !r.OK {
		t.Fatalf("open coin: %s", r.Err)
	}
	alice, err := boundary.DecodeAccountRecord(ok(t, w.CreateAccount(1, "alice", testPhrase, "", 0, 1)))
	if err != nil {
		t.Fatal(err)
	}
	addr := string(ok(t, w.NewAddress(1, alice.ID, types.MaskAll)))

	var funded rpc.TxIDResult
	if err := env.client.Call("regtest_fund", rpc.FundParam{Address: addr, Pool: "orchard", Amount: "0.0001"}, &funded); err != nil {
		t.Fatalf("regtest_fund: %v", err)
	}
	if err := env.client.Call("regtest_mine", rpc.MineParam{Blocks: 1}, nil); err != nil {
		t.Fatalf("regtest_mine: %v", err)
	}

	h, err := boundary.ParseUint32(ok(t, w.Scan(ctx, 1, 0)))
	if err != nil || h != 1 {
		t.Fatalf("scan = %d, %v", h, err)
	}
	bal, err := boundary.DecodeBalanceRecord(ok(t, w.Balance(1, alice.ID, coin.AtTip)))
	if err != nil {
		t.Fatal(err)
	}
	if bal.Orchard != 10000 {
		t.Fatalf("balance = %+v", bal)
	}

	req := &boundary.PaymentRequest{
		Version:    boundary.RecordVersion,
		Account:    alice.ID,
		Recipients: []boundary.RecipientRecord{{Address: addr, Amount: 4000}},
	}
	raw, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	sum, err := boundary.DecodeSummaryRecord(ok(t, w.BuildPayment(1, raw)))
	if err != nil {
		t.Fatal(err)
	}
	txid := ok(t, w.Send(ctx, 1, sum.Handle, 0))
	pending, err := src.Pending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("Pending() = %d, %v", len(pending), err)
	}
	decoded, err := tx.Decode(pending[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := decoded.Hash(); string(got[:]) != string(txid) {
		t.Errorf("pending txid = %s", got)
	}
}

func ok(t *testing.T, r *boundary.Result) []byte {
	t.Helper()
	if !r.OK {
		t.Fatalf("call failed: %s (%s)", r.Err, r.Kind)
	}
	return r.Payload
}
