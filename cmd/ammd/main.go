package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/eventlog"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-amm-go/token"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, _ := cfg.Level()

	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	prometheusRegistry := prometheus.DefaultRegisterer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bank, err := buildBank(cfg.Tokens, rootLogger)
	if err != nil {
		return fmt.Errorf("failed to build genesis tokens: %w", err)
	}

	poolAddr, token1, token2 := cfg.Pool.Addresses()
	bootstrap, _ := cfg.Pool.Bootstrap()

	events := eventlog.New(rootLogger.With("component", "eventlog"), prometheusRegistry)
	pool, err := ledger.New(ledger.Config{
		Address:         poolAddr,
		Token1:          token1,
		Token2:          token2,
		FeeBps:          cfg.Pool.FeeBps,
		ZeroFee:         cfg.Pool.ZeroFee,
		BootstrapShares: bootstrap,
		Tokens:          bank.Pool(poolAddr),
		Events:          events,
		Logger:          rootLogger.With("component", "ledger"),
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: prometheusRegistry,
		Logger:   rootLogger.With("component", "differ"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize differ: %w", err)
	}

	rpcServer, err := server.New(server.Config{
		Ledger:     pool,
		Events:     events,
		Differ:     stateDiffer,
		Bank:       bank,
		Logger:     rootLogger.With("component", "jsonrpc-server"),
		Registry:   prometheusRegistry,
		BufferSize: cfg.RPC.StreamBuffer,
		DevMethods: cfg.RPC.DevMethods,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize RPC server: %w", err)
	}
	defer rpcServer.Stop()

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	mux.Handle("/", rpcServer.Handler(cfg.RPC.AllowedOrigins))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	rootLogger.Info("AMM node started",
		"listen_addr", cfg.ListenAddr,
		"pool", poolAddr.Hex(),
		"token1", token1.Hex(),
		"token2", token2.Hex(),
		"fee_bps", pool.FeeBps(),
		"dev_methods", cfg.RPC.DevMethods,
	)

	select {
	case <-ctx.Done():
		rootLogger.Info("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// buildBank creates every configured token and mints its genesis allocations.
func buildBank(tokens []config.TokenConfig, logger *slog.Logger) (*token.Bank, error) {
	bank, err := token.NewBank()
	if err != nil {
		return nil, err
	}
	for _, tc := range tokens {
		t, err := token.New(token.Metadata{
			Address:  tc.AddressValue(),
			Name:     tc.Name,
			Symbol:   tc.Symbol,
			Decimals: tc.Decimals,
		})
		if err != nil {
			return nil, err
		}
		allocations, err := tc.ParseAllocations()
		if err != nil {
			return nil, err
		}
		for _, a := range allocations {
			if err := t.Mint(a.Account, a.Amount); err != nil {
				return nil, fmt.Errorf("mint %s to %s: %w", tc.Symbol, a.Account.Hex(), err)
			}
		}
		if err := bank.Add(t); err != nil {
			return nil, err
		}
		logger.Info("Token created", "symbol", tc.Symbol, "address", t.Address().Hex(), "total_supply", t.TotalSupply())
	}
	return bank, nil
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
