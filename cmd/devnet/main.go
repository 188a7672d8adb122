// Command devnet runs a local development chain with two wallets.
//
// Usage: go run ./cmd/devnet/
//
// It starts an in-process chain behind a JSON-RPC server, opens a primary
// wallet that reads the chain directly and a follower wallet that scans it
// over RPC, restores the same account in both, funds it, produces blocks at
// a fixed interval, sends a shielded payment mid-run, and verifies both
// wallets converge on the same height and balance.
// Ctrl+C for early shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/warpwallet/internal/boundary"
	"github.com/Klingon-tech/warpwallet/internal/coin"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	klog "github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/miner"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/rpc"
	"github.com/Klingon-tech/warpwallet/internal/rpcclient"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog"
)

const (
	coinID     = 1
	numBlocks  = 10
	payAtBlock = 3
	blockTime  = time.Second

	fundAmount = 5_0000_0000
	payAmount  = 1_2500_0000
)

// walletBundle is one wallet and the chain it scans.
type walletBundle struct {
	name   string
	wallet *boundary.Wallet
}

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("devnet")

	logger.Info().Msg("=== warpwallet local development chain ===")

	// ── Phase 1: Chain + RPC ─────────────────────────────────────────────

	types.SetAddressHRPs(types.TestnetHRPs)
	m := miner.New(clock.NewDefaultClock(), tx.DefaultFeeRule())

	srv := rpc.New("127.0.0.1:0")
	srv.SetMiner(coinID, m)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start chain RPC")
	}
	defer srv.Stop()
	logger.Info().Str("addr", srv.Addr()).Msg("Chain RPC started")

	// ── Phase 2: Wallets ─────────────────────────────────────────────────

	primary, err := buildWallet("primary", m)
	if err != nil {
		logger.Fatal().Err(err).Msg("build primary wallet")
	}
	source := rpcclient.NewSource(rpcclient.New("http://"+srv.Addr()), coinID)
	follower, err := buildWallet("follower", source)
	if err != nil {
		logger.Fatal().Err(err).Msg("build follower wallet")
	}

	phrase, err := keys.GeneratePhrase()
	if err != nil {
		logger.Fatal().Err(err).Msg("generate phrase")
	}
	for _, w := range []*walletBundle{primary, follower} {
		must(logger, w.name, w.wallet.CreateAccount(coinID, "alice", phrase, "", 0, 0))
	}
	must(logger, "primary", primary.wallet.CreateAccount(coinID, "bob", phrase, "", 1, 0))

	aliceAddr := string(must(logger, "primary", primary.wallet.NewAddress(coinID, 0, types.MaskShielded)))
	bobAddr := string(must(logger, "primary", primary.wallet.NewAddress(coinID, 1, types.MaskShielded)))

	pa, err := types.ParsePaymentAddress(aliceAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse alice address")
	}
	fundID, err := m.Fund(pa, types.Orchard, fundAmount, "devnet faucet")
	if err != nil {
		logger.Fatal().Err(err).Msg("fund alice")
	}
	logger.Info().
		Str("address", aliceAddr).
		Str("txid", fundID.String()[:16]+"...").
		Str("amount", pay.FormatAmount(fundAmount)).
		Msg("Faucet payment queued")

	// ── Phase 3: Signal handling ─────────────────────────────────────────

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// ── Phase 4: Block production ────────────────────────────────────────

	logger.Info().
		Int("blocks", numBlocks).
		Dur("interval", blockTime).
		Msg("Starting block production")

	for i := 1; i <= numBlocks; i++ {
		if ctx.Err() != nil {
			logger.Info().Msg("Production interrupted")
			break
		}

		if err := m.Mine(1); err != nil {
			logger.Fatal().Err(err).Msg("produce block")
		}
		for _, w := range []*walletBundle{primary, follower} {
			must(logger, w.name, w.wallet.Scan(ctx, coinID, 0))
		}
		logger.Info().Uint32("height", m.Height()).Msg("Block produced and scanned")

		if i == payAtBlock {
			txid := sendPayment(ctx, logger, primary, bobAddr)
			logger.Info().
				Str("txid", txid.String()[:16]+"...").
				Str("amount", pay.FormatAmount(payAmount)).
				Msg("Payment to bob broadcast")
		}

		if i < numBlocks {
			select {
			case <-ctx.Done():
			case <-time.After(blockTime):
			}
		}
	}

	// ── Phase 5: Verification ────────────────────────────────────────────

	for _, w := range []*walletBundle{primary, follower} {
		must(logger, w.name, w.wallet.Scan(context.Background(), coinID, 0))
	}
	a1 := balance(logger, primary, 0)
	a2 := balance(logger, follower, 0)
	bob := balance(logger, primary, 1)

	logger.Info().
		Uint32("primary_height", a1.Height).
		Uint32("follower_height", a2.Height).
		Uint64("primary_alice", a1.Total).
		Uint64("follower_alice", a2.Total).
		Uint64("bob", bob.Total).
		Msg("Final wallet state")

	if a1.Height != a2.Height || a1.Total != a2.Total {
		logger.Error().Msg("FAILURE: wallets disagree")
		os.Exit(1)
	}
	if a1.Height >= payAtBlock+1 && bob.Total != payAmount {
		logger.Error().Uint64("bob", bob.Total).Msg("FAILURE: payment not received")
		os.Exit(1)
	}

	logger.Info().Msg("SUCCESS: both wallets converged")
	fmt.Println()
	fmt.Printf("  Blocks produced:  %d\n", m.Height())
	fmt.Printf("  Alice balance:    %s\n", pay.FormatAmount(a1.Total))
	fmt.Printf("  Bob balance:      %s\n", pay.FormatAmount(bob.Total))
	fmt.Printf("  Fee paid:         %s\n", pay.FormatAmount(fundAmount-a1.Total-bob.Total))
	fmt.Println()
}

// buildWallet opens a wallet on in-memory storage scanning backend.
func buildWallet(name string, backend boundary.Backend) (*walletBundle, error) {
	w := boundary.New(coin.NewRegistry(storage.NewMemory()))
	cfg := coin.DefaultConfig(coinID, "zec")
	cfg.CoinType = 1
	if r := w.OpenCoin(cfg, backend); !r.OK {
		return nil, fmt.Errorf("open coin: %w", r.Error())
	}
	return &walletBundle{name: name, wallet: w}, nil
}

func sendPayment(ctx context.Context, logger zerolog.Logger, from *walletBundle, to string) types.Hash {
	req := &boundary.PaymentRequest{
		Account:    0,
		Recipients: []boundary.RecipientRecord{{Address: to, Amount: payAmount, Memo: "devnet lunch"}},
	}
	raw, err := req.Encode()
	if err != nil {
		logger.Fatal().Err(err).Msg("encode payment request")
	}
	sum, err := boundary.DecodeSummaryRecord(must(logger, from.name, from.wallet.BuildPayment(coinID, raw)))
	if err != nil {
		logger.Fatal().Err(err).Msg("decode summary")
	}
	var txid types.Hash
	copy(txid[:], must(logger, from.name, from.wallet.Send(ctx, coinID, sum.Handle, 0)))
	return txid
}

func balance(logger zerolog.Logger, w *walletBundle, account uint32) *boundary.BalanceRecord {
	b, err := boundary.DecodeBalanceRecord(must(logger, w.name, w.wallet.Balance(coinID, account, coin.AtTip)))
	if err != nil {
		logger.Fatal().Err(err).Msg("decode balance")
	}
	return b
}

// must returns the payload of a successful call and exits otherwise.
func must(logger zerolog.Logger, name string, r *boundary.Result) []byte {
	if !r.OK {
		logger.Fatal().Str("wallet", name).Str("kind", r.Kind.String()).Msg(r.Err)
	}
	return r.Payload
}
