// Package node assembles a wallet daemon: storage, the coin registry, one
// backend per coin, the scan and mempool loops, and the RPC and metrics
// endpoints. It can be embedded in any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Klingon-tech/warpwallet/config"
	"github.com/Klingon-tech/warpwallet/internal/boundary"
	"github.com/Klingon-tech/warpwallet/internal/coin"
	klog "github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/miner"
	"github.com/Klingon-tech/warpwallet/internal/rpc"
	"github.com/Klingon-tech/warpwallet/internal/rpcclient"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized wallet daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	reg    *coin.Registry
	wallet *boundary.Wallet
	chains map[uint8]rpc.Chain
	miners map[uint8]*miner.Miner

	// Endpoints
	rpcServer *rpc.Server
	metrics   *http.Server
	metricsLn net.Listener

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It opens storage and every
// configured coin and starts the RPC and metrics endpoints, but does NOT
// start the scan and mempool loops. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Address prefixes ─────────────────────────────────────────
	types.SetAddressHRPs(config.HRPs(cfg.Network))

	// ── 2. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "warpwallet.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	specs, err := cfg.CoinSpecs()
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Int("coins", len(specs)).
		Msg("Starting warpwallet daemon")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.WalletDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.WalletDir(), err)
	}
	logger.Info().Str("path", cfg.WalletDir()).Msg("Database opened")

	n := &Node{
		cfg:    cfg,
		logger: logger,
		reg:    coin.NewRegistry(db),
		chains: make(map[uint8]rpc.Chain),
		miners: make(map[uint8]*miner.Miner),
	}
	n.wallet = boundary.New(n.reg)
	n.ctx, n.cancel = context.WithCancel(context.Background())

	// ── 4. Metrics registry ─────────────────────────────────────────
	var promReg *prometheus.Registry
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	// ── 5. Coins ────────────────────────────────────────────────────
	for _, spec := range specs {
		backend := n.backendFor(spec)
		ccfg := coinConfig(cfg, spec)
		if promReg != nil {
			ccfg.Registerer = promReg
		}
		if r := n.wallet.OpenCoin(ccfg, backend); !r.OK {
			n.Stop()
			return nil, fmt.Errorf("open coin %s: %w", spec, r.Error())
		}
		n.chains[spec.ID] = backend
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := net.JoinHostPort(cfg.RPC.Addr, fmt.Sprint(cfg.RPC.Port))
		n.rpcServer = rpc.New(rpcAddr, cfg.RPC)
		n.rpcServer.SetWallet(n.wallet)
		for id, c := range n.chains {
			if m, ok := n.miners[id]; ok {
				n.rpcServer.SetMiner(id, m)
				continue
			}
			n.rpcServer.SetChain(id, c)
		}
		if err := n.rpcServer.Start(); err != nil {
			n.rpcServer = nil
			n.Stop()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	// ── 7. Metrics endpoint ─────────────────────────────────────────
	if promReg != nil {
		if err := n.startMetrics(promReg); err != nil {
			n.Stop()
			return nil, err
		}
	}

	return n, nil
}

// backendFor returns the chain a coin scans: an in-process development
// chain on regtest without a node URL, the remote node otherwise.
func (n *Node) backendFor(spec config.CoinSpec) rpc.Chain {
	if n.cfg.Network == config.Regtest && n.cfg.Node.URL == "" {
		m := miner.New(clock.NewDefaultClock(), feeRule(n.cfg))
		n.miners[spec.ID] = m
		n.logger.Info().Str("coin", spec.Name).Msg("Using in-process development chain")
		return m
	}
	client := rpcclient.NewWithTimeout(n.cfg.Node.URL, n.cfg.Node.Timeout)
	n.logger.Info().Str("coin", spec.Name).Str("url", n.cfg.Node.URL).Msg("Using remote node")
	return rpcclient.NewSource(client, spec.ID)
}

func feeRule(cfg *config.Config) tx.FeeRule {
	rule := tx.DefaultFeeRule()
	if cfg.Wallet.MarginalFee > 0 {
		rule.MarginalFee = cfg.Wallet.MarginalFee
	}
	return rule
}

// coinConfig derives the configuration of one coin from the daemon's.
func coinConfig(cfg *config.Config, spec config.CoinSpec) coin.Config {
	c := coin.DefaultConfig(spec.ID, spec.Name)
	c.CoinType = spec.CoinType
	c.GapLimit = cfg.Wallet.GapLimit
	c.CheckpointInterval = cfg.Wallet.CheckpointInterval
	c.MinConfirmations = cfg.Wallet.MinConfirmations
	if cfg.Wallet.ExpiryDelta > 0 {
		c.ExpiryDelta = cfg.Wallet.ExpiryDelta
	}
	c.FeeRule = feeRule(cfg)
	c.MempoolSize = cfg.Mempool.MaxSize
	c.Workers = cfg.Wallet.Workers
	return c
}

func (n *Node) startMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", n.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("start metrics at %s: %w", n.cfg.Metrics.Addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	n.metrics = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	n.metricsLn = ln
	go func() {
		if err := n.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	n.logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint started")
	return nil
}

// Start launches the background loops: one scanner and, when enabled, one
// mempool poller per coin.
func (n *Node) Start() error {
	for id, c := range n.chains {
		id := id
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runScanLoop(id, ticker.New(n.cfg.Wallet.ScanInterval))
		}()

		if !n.cfg.Mempool.Enabled {
			continue
		}
		cc, err := n.reg.Get(id)
		if err != nil {
			return err
		}
		src := c
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			err := cc.RunMempool(n.ctx, src, ticker.New(n.cfg.Mempool.PollInterval))
			if err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Error().Err(err).Uint8("coin", id).Msg("Mempool loop stopped")
			}
		}()
	}

	n.logger.Info().
		Int("coins", len(n.chains)).
		Dur("scan_interval", n.cfg.Wallet.ScanInterval).
		Bool("mempool", n.cfg.Mempool.Enabled).
		Msg("Daemon started successfully")
	return nil
}

// runScanLoop scans coin id to its backend tip on every tick.
func (n *Node) runScanLoop(id uint8, tk ticker.Ticker) {
	tk.Resume()
	defer tk.Stop()

	n.scanOnce(id)
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-tk.Ticks():
			n.scanOnce(id)
		}
	}
}

func (n *Node) scanOnce(id uint8) {
	r := n.wallet.Scan(n.ctx, id, 0)
	if r.OK {
		h, _ := boundary.ParseUint32(r.Payload)
		n.logger.Debug().Uint8("coin", id).Uint32("height", h).Msg("Scan complete")
		return
	}
	if n.ctx.Err() != nil {
		return
	}
	n.logger.Warn().Uint8("coin", id).Str("kind", r.Kind.String()).Msg(r.Err)
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n.metrics.Shutdown(ctx)
		cancel()
	}
	if n.reg != nil {
		if err := n.reg.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Close database")
		}
	}

	n.logger.Info().Msg("Goodbye!")
}

// Wallet returns the wallet call surface.
func (n *Node) Wallet() *boundary.Wallet { return n.wallet }

// Miner returns the development chain of coin id, if it has one.
func (n *Node) Miner(id uint8) (*miner.Miner, bool) {
	m, ok := n.miners[id]
	return m, ok
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// MetricsAddr returns the address the metrics endpoint is listening on.
func (n *Node) MetricsAddr() string {
	if n.metricsLn == nil {
		return ""
	}
	return n.metricsLn.Addr().String()
}
