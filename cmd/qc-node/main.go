package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
	"quantumcoin.dev/node/node"
	"quantumcoin.dev/node/node/store"
)

// replaced in tests
var notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	app := newApp(out, errOut)
	if err := app.Run(append([]string{app.Name}, args...)); err != nil {
		_, _ = fmt.Fprintf(errOut, "error: %v\n", err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			return ec.ExitCode()
		}
		return 1
	}
	return 0
}

func newApp(out, errOut io.Writer) *cli.App {
	defaults := node.DefaultConfig()
	return &cli.App{
		Name:      "qc-node",
		Usage:     "quantumcoin full node: chain state, mempool and miner",
		Writer:    out,
		ErrWriter: errOut,
		// errors are printed by run
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "node config file (TOML)"},
			&cli.StringFlag{Name: "datadir", Usage: "node data directory", Value: defaults.DataDir},
			&cli.StringFlag{Name: "network", Usage: "network name (devnet|mainnet)", Value: defaults.Network},
			&cli.StringFlag{Name: "chain-spec", Usage: "chainspec TOML overriding the built-in network parameters"},
			&cli.StringFlag{Name: "db-backend", Usage: "bolt|leveldb", Value: defaults.DBBackend},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error", Value: defaults.LogLevel},
			&cli.BoolFlag{Name: "dev", Usage: "human-readable development logging"},
		},
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "print the effective configuration",
				Action: cmdConfig,
			},
			{
				Name:  "keygen",
				Usage: "create a Dilithium2 keystore",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "keystore path", Required: true},
				},
				Action: cmdKeygen,
			},
			{
				Name:  "address",
				Usage: "derive the address of a public key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pubkey", Usage: "hex public key"},
					&cli.StringFlag{Name: "keystore", Usage: "keystore path"},
				},
				Action: cmdAddress,
			},
			{
				Name:  "init",
				Usage: "mine and apply the genesis block",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keystore", Usage: "keystore whose key receives the genesis reward"},
				},
				Action: cmdInit,
			},
			{
				Name:  "mine",
				Usage: "mine blocks on top of the local tip",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "blocks", Usage: "number of blocks", Value: 1},
					&cli.StringFlag{Name: "keystore", Usage: "keystore whose key receives the rewards"},
				},
				Action: cmdMine,
			},
			{
				Name:   "tip",
				Usage:  "print the chain tip",
				Action: cmdTip,
			},
			{
				Name:  "balance",
				Usage: "sum the unspent outputs of an address",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Required: true},
				},
				Action: cmdBalance,
			},
			{
				Name:  "serve",
				Usage: "expose metrics and optionally mine until interrupted",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "mine", Usage: "run the miner"},
					&cli.StringFlag{Name: "keystore", Usage: "keystore whose key receives the rewards"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "listen address for /metrics"},
				},
				Action: cmdServe,
			},
		},
	}
}

func loadConfig(c *cli.Context) (node.Config, error) {
	cfg, err := node.LoadConfig(c.String("config"))
	if err != nil {
		return cfg, cli.Exit(fmt.Sprintf("invalid config: %v", err), 2)
	}
	override := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	override("datadir", &cfg.DataDir)
	override("network", &cfg.Network)
	override("db-backend", &cfg.DBBackend)
	override("log-level", &cfg.LogLevel)
	override("chain-spec", &cfg.ChainSpec)
	override("metrics-addr", &cfg.MetricsAddr)
	if ks := c.String("keystore"); ks != "" {
		k, err := node.ReadKeyStore(ks)
		if err != nil {
			return cfg, cli.Exit(fmt.Sprintf("keystore: %v", err), 2)
		}
		cfg.Miner.CoinbasePubkey = k.PubkeyHex
	}
	if err := node.ValidateConfig(cfg); err != nil {
		return cfg, cli.Exit(fmt.Sprintf("invalid config: %v", err), 2)
	}
	return cfg, nil
}

type nodeRuntime struct {
	cfg      node.Config
	spec     *consensus.ChainSpec
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *node.Metrics
	store    store.Store
	chain    *node.ChainState
	pool     *node.Mempool
}

func openRuntime(c *cli.Context) (*nodeRuntime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	spec, err := node.ResolveChainSpec(cfg)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("chainspec: %v", err), 2)
	}
	log, err := node.NewLogger(cfg.LogLevel, c.Bool("dev"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 2)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := node.NewMetrics(reg)

	st, err := store.Open(store.Options{DataDir: cfg.DataDir, Network: cfg.Network, Backend: cfg.DBBackend})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("store open failed: %v", err), 2)
	}
	sigs, err := node.NewSigCache(cfg.SigCacheSize, crypto.StdCryptoProvider{})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	chain, err := node.NewChainState(spec, st,
		node.WithVerifier(sigs),
		node.WithLogger(log),
		node.WithMetrics(metrics),
	)
	if err != nil {
		_ = st.Close()
		return nil, cli.Exit(fmt.Sprintf("chainstate load failed: %v", err), 2)
	}
	return &nodeRuntime{
		cfg:      cfg,
		spec:     spec,
		log:      log,
		registry: reg,
		metrics:  metrics,
		store:    st,
		chain:    chain,
		pool:     node.NewMempool(spec, cfg.Mempool, log, metrics),
	}, nil
}

func (r *nodeRuntime) Close() {
	if err := r.store.Close(); err != nil {
		r.log.Error("store close", zap.Error(err))
	}
	_ = r.log.Sync()
}

func (r *nodeRuntime) miner() (*node.Miner, error) {
	if r.cfg.Miner.CoinbasePubkey == "" {
		return nil, cli.Exit("no coinbase key: pass --keystore or set miner.coinbase_pubkey", 2)
	}
	return node.NewMiner(r.chain, r.pool, r.cfg.Miner, r.log)
}

func cmdConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(c.App.Writer)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func cmdKeygen(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	spec, err := node.ResolveChainSpec(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("chainspec: %v", err), 2)
	}
	ks, err := node.NewKeyStore(spec.Network.AddressPrefix, nil)
	if err != nil {
		return err
	}
	if err := node.WriteKeyStore(c.String("out"), ks); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.App.Writer, "address: %s\n", ks.Address)
	return nil
}

func cmdAddress(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	spec, err := node.ResolveChainSpec(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("chainspec: %v", err), 2)
	}
	pubHex := c.String("pubkey")
	if pubHex == "" {
		pubHex = cfg.Miner.CoinbasePubkey
	}
	if pubHex == "" {
		return cli.Exit("address: pass --pubkey or --keystore", 2)
	}
	pk, err := node.MinerConfig{CoinbasePubkey: pubHex}.Pubkey()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	addr, err := crypto.AddressFromPubkey(spec.Network.AddressPrefix, pk)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.App.Writer, addr)
	return nil
}

func cmdInit(c *cli.Context) error {
	r, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer r.Close()
	if tip, ok := r.chain.Tip(); ok {
		_, _ = fmt.Fprintf(c.App.Writer, "already initialized: height=%d hash=%s\n", tip.Height, tip.Hash)
		return nil
	}
	if r.cfg.Miner.CoinbasePubkey == "" {
		return cli.Exit("no coinbase key: pass --keystore or set miner.coinbase_pubkey", 2)
	}
	pk, err := r.cfg.Miner.Pubkey()
	if err != nil {
		return err
	}
	genesis, err := node.BuildGenesis(c.Context, r.spec, pk)
	if err != nil {
		return err
	}
	summary, err := r.chain.ApplyBlock(0, genesis)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.App.Writer, "genesis: hash=%s reward=%s\n", summary.Hash,
		node.FormatAmount(summary.CoinbaseValue, r.spec.Network.Decimals))
	return nil
}

func cmdMine(c *cli.Context) error {
	n := c.Int("blocks")
	if n < 0 {
		return cli.Exit("blocks must be >= 0", 2)
	}
	r, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer r.Close()
	m, err := r.miner()
	if err != nil {
		return err
	}
	ctx, stop := notifyContext(c.Context)
	defer stop()
	mined, err := m.MineN(ctx, n)
	for _, b := range mined {
		_, _ = fmt.Fprintf(c.App.Writer, "mined: height=%d hash=%s timestamp=%d nonce=%d tx_count=%d\n",
			b.Height, b.Hash, b.Timestamp, b.Nonce, b.TxCount)
	}
	return err
}

func cmdTip(c *cli.Context) error {
	r, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer r.Close()
	tip, ok := r.chain.Tip()
	if !ok {
		_, _ = fmt.Fprintln(c.App.Writer, "tip: empty")
		return nil
	}
	_, _ = fmt.Fprintf(c.App.Writer, "tip: height=%d hash=%s\n", tip.Height, tip.Hash)
	return nil
}

func cmdBalance(c *cli.Context) error {
	r, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer r.Close()
	bal, err := r.chain.Balance(c.String("address"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("balance: %v", err), 2)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "%s %s\n", node.FormatAmount(bal, r.spec.Network.Decimals), r.spec.Network.Symbol)
	return nil
}

func cmdServe(c *cli.Context) error {
	r, err := openRuntime(c)
	if err != nil {
		return err
	}
	defer r.Close()

	var m *node.Miner
	if c.Bool("mine") {
		if m, err = r.miner(); err != nil {
			return err
		}
	}

	ctx, stop := notifyContext(c.Context)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if r.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
		srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			r.log.Info("metrics listening", zap.String("addr", r.cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if m != nil {
		g.Go(func() error { return m.Run(gctx) })
	}

	_, _ = fmt.Fprintln(c.App.Writer, "qc-node running")
	<-gctx.Done()
	err = g.Wait()
	_, _ = fmt.Fprintln(c.App.Writer, "qc-node stopped")
	return err
}
