package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intercessor/crypto"
	"intercessor/native/intercessor"
	"intercessor/native/token"
	"intercessor/observability/logging"
	"intercessor/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to gateway TOML config")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.Setup("intercessor-gateway", cfg.Environment)

	authorityAddr, err := crypto.ParseAddress(cfg.AuthorityAddress)
	if err != nil {
		log.Error("parse authority address", "error", err)
		os.Exit(1)
	}
	authority := authorityAddr.Bytes20()

	var db storage.Database
	switch cfg.StorageBackend {
	case storageBackendLevelDB:
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			log.Error("open leveldb", "path", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		db = leveldb
	default:
		db = storage.NewMemDB()
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("close storage", "error", err)
		}
	}()

	state := intercessor.NewKVState(db)
	ledger := token.NewLedger()
	for _, symbol := range cfg.Assets {
		if err := ledger.Register(symbol); err != nil {
			log.Error("register asset", "symbol", symbol, "error", err)
			os.Exit(1)
		}
	}
	nativeLedger := token.NewNativeLedger()

	emitter := slogEmitter{log: log}

	registry := intercessor.NewRegistry(authority)
	registry.SetState(state)
	registry.SetEmitter(emitter)

	moduleKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		log.Error("generate module key", "error", err)
		os.Exit(1)
	}
	module := moduleKey.Address().Bytes20()

	engine := intercessor.NewEngine(registry, module)
	engine.SetState(state)
	engine.SetTokens(ledger)
	engine.SetEmitter(emitter)

	vaultKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		log.Error("generate vault key", "error", err)
		os.Exit(1)
	}
	vault := vaultKey.Address().Bytes20()

	nativeEngine := intercessor.NewNativeEngine(registry, vault)
	nativeEngine.SetState(state)
	nativeEngine.SetTokens(ledger)
	nativeEngine.SetNative(nativeLedger)
	nativeEngine.SetEmitter(emitter)

	skew, err := cfg.Skew()
	if err != nil {
		log.Error("parse timestamp skew", "error", err)
		os.Exit(1)
	}
	secrets := make(map[string]string, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		secrets[key.Key] = key.Secret
	}
	auth := NewAuthenticator(secrets, skew, time.Now)

	server := NewServer(engine, nativeEngine, registry, authority, auth, log)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "address", cfg.ListenAddress, "storage", cfg.StorageBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown", "error", err)
	}
}
