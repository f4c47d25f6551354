package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nestegg/config"
	"nestegg/crypto"
	nativecommon "nestegg/native/common"
	"nestegg/native/daily"
	"nestegg/native/dca"
	"nestegg/native/hook"
	"nestegg/native/ledger"
	"nestegg/native/strategy"
	"nestegg/observability"
	"nestegg/observability/logging"
	"nestegg/rpc"
	"nestegg/state"
	"nestegg/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memStorage := flag.Bool("mem", false, "DEV ONLY: use in-memory storage instead of LevelDB")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NESTEGG_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup(cfg.ServiceName, env)

	var db storage.Database
	if *memStorage {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedAdminState(manager, cfg); err != nil {
		logger.Error("Failed to seed admin state", slog.Any("error", err))
		os.Exit(1)
	}

	recorder := observability.NewRecorder(logger)

	vault := ledger.NewLedger()
	vault.SetState(manager)
	vault.SetEmitter(recorder)
	vault.SetPauses(manager)

	strategies := strategy.NewEngine()
	strategies.SetState(manager)
	strategies.SetEmitter(recorder)
	strategies.SetPauses(manager)
	strategies.SetGlobalMaxBps(cfg.GlobalMaxSaveBps)

	dcaEngine := dca.NewEngine(nativecommon.ModuleAddress(nativecommon.ModuleDCA), vault)
	dcaEngine.SetState(manager)
	dcaEngine.SetEmitter(recorder)
	dcaEngine.SetPauses(manager)

	dailyEngine := daily.NewEngine(nativecommon.ModuleAddress(nativecommon.ModuleDaily), vault)
	dailyEngine.SetState(manager)
	dailyEngine.SetEmitter(recorder)
	dailyEngine.SetPauses(manager)

	interceptor := hook.NewInterceptor(strategies, vault)
	interceptor.SetDCAQueuer(dcaEngine)
	interceptor.SetEmitter(recorder)
	interceptor.SetPauses(manager)

	server := rpc.NewServer(strategies, vault, interceptor, dcaEngine, dailyEngine, manager, cfg.AuthToken(), logger)

	go func() {
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("nesteggd running",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("metrics", cfg.MetricsAddress),
		slog.String("dataDir", cfg.DataDir))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", slog.String("signal", sig.String()))
}

// seedAdminState applies the config-declared treasury settings and registers
// the module custody addresses. Values already present in storage are
// overwritten; the config file is the source of truth at boot.
func seedAdminState(manager *state.Manager, cfg *config.Config) error {
	if trimmed := strings.TrimSpace(cfg.TreasuryAddress); trimmed != "" {
		addr, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return err
		}
		if err := manager.SetTreasuryAddress(addr); err != nil {
			return err
		}
	}
	if err := manager.SetTreasuryFeeBps(cfg.TreasuryFeeBps); err != nil {
		return err
	}
	for _, module := range []string{nativecommon.ModuleDCA, nativecommon.ModuleDaily} {
		if err := manager.SetModuleAuthorized(nativecommon.ModuleAddress(module), true); err != nil {
			return err
		}
	}
	return nil
}
