// Command aeepd runs the AEEP server: agent registry, envelope
// authentication, negotiation engine, message router, Merkle batching and
// on-chain anchoring, trust scoring, and the periodic sweeps that keep all
// of it honest.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aeep-network/aeep/pkg/batching"
	"github.com/aeep-network/aeep/pkg/config"
	"github.com/aeep-network/aeep/pkg/cryptoutil"
	"github.com/aeep-network/aeep/pkg/envelope"
	"github.com/aeep-network/aeep/pkg/identity"
	"github.com/aeep-network/aeep/pkg/metrics"
	"github.com/aeep-network/aeep/pkg/negotiation"
	"github.com/aeep-network/aeep/pkg/realtimesync"
	"github.com/aeep-network/aeep/pkg/relayer"
	"github.com/aeep-network/aeep/pkg/router"
	"github.com/aeep-network/aeep/pkg/scheduler"
	"github.com/aeep-network/aeep/pkg/server"
	"github.com/aeep-network/aeep/pkg/store"
	"github.com/aeep-network/aeep/pkg/trust"
)

func main() {
	policyPath := flag.String("policy", os.Getenv("AEEP_POLICY_PATH"), "path to policy.yaml (defaults compiled in if empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("⚠️  config validation: %v (continuing)", err)
	}

	policy := config.DefaultPolicyConfig()
	if *policyPath != "" {
		policy, err = config.LoadPolicyConfig(*policyPath)
		if err != nil {
			log.Fatalf("load policy: %v", err)
		}
	}

	logger := log.New(os.Stdout, "[aeepd] ", log.LstdFlags)

	serverKey, err := loadOrGenerateServerKey(cfg)
	if err != nil {
		log.Fatalf("load server identity key: %v", err)
	}
	serverVerify, err := cryptoutil.EncodeEd25519PublicKey(serverKey.Public().(ed25519.PublicKey))
	if err != nil {
		log.Fatalf("encode server verification key: %v", err)
	}
	serverDID := "did:key:" + serverVerify
	logger.Printf("server DID: %s", serverDID)

	dbClient, err := store.NewClient(cfg)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer dbClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dbClient.MigrateUp(ctx); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	repos := store.NewRepositories(dbClient)

	syncClient, err := realtimesync.NewClient(ctx, &realtimesync.ClientConfig{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.FirebaseCredentialsFile,
		Enabled:         cfg.FirestoreEnabled,
		Logger:          log.New(os.Stdout, "[realtimesync] ", log.LstdFlags),
	})
	if err != nil {
		log.Fatalf("init realtime sync client: %v", err)
	}
	syncService := realtimesync.NewSyncService(&realtimesync.SyncServiceConfig{
		Client: syncClient,
		Logger: log.New(os.Stdout, "[realtimesync] ", log.LstdFlags),
	})
	defer syncService.Stop()

	m := metrics.New()

	scorer := trust.NewScorer(policy.Trust)
	registry := identity.NewRegistry(dbClient, repos, scorer, policy.Discovery.HeartbeatStale.Duration())
	pipeline := envelope.NewAuthPipeline(repos, policy.Negotiation.ClockSkew.Duration(), policy.Negotiation.NonceTTL.Duration())

	rel, err := newRelayer(cfg)
	if err != nil {
		log.Fatalf("init relayer: %v", err)
	}

	collector, err := batching.NewCollector(ctx, repos, rel, policy.Batch, log.New(os.Stdout, "[batching] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("init batch collector: %v", err)
	}
	collector.WithMetrics(m)
	batchScheduler := batching.NewScheduler(collector, repos, rel, policy.Batch, log.New(os.Stdout, "[batching] ", log.LstdFlags))
	batchScheduler.Start(ctx)
	defer batchScheduler.Stop()

	engine := negotiation.NewEngine(repos, scorer, collector, policy.Negotiation)

	hub := router.NewHub(policy.Security.StreamMaxPerAgent, policy.Security.StreamMaxGlobal)
	msgRouter := router.NewRouter(repos, hub, cfg.MessageTTL).WithMetrics(m)

	sweeper := scheduler.New(engine, registry, repos, policy.Negotiation, log.New(os.Stdout, "[scheduler] ", log.LstdFlags))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	srv := server.New(server.Deps{
		Repos:              repos,
		Registry:           registry,
		Pipeline:           pipeline,
		Engine:             engine,
		Router:             msgRouter,
		Relayer:            rel,
		Sync:               syncService,
		Metrics:            m,
		Logger:             logger,
		ServerDID:          serverDID,
		ServerVerifyMethod: serverVerify,
		Discovery:          policy.Discovery,
		StreamKeepAlive:    30 * time.Second,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(cfg.CORSOrigins),
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown: %v", err)
	}

	logger.Printf("stopped")
}

// newRelayer selects the on-chain anchor backend per RELAYER_MODE.
// "mock" is the default so a fresh checkout runs without an Ethereum RPC
// endpoint configured; "ethereum" requires EthereumURL/EthPrivateKey/
// AnchorContractAddress to be set.
func newRelayer(cfg *config.Config) (relayer.Relayer, error) {
	switch cfg.RelayerMode {
	case "ethereum":
		return relayer.NewEthereumRelayer(cfg.EthereumURL, cfg.EthChainID, cfg.AnchorContractAddress, cfg.EthPrivateKey)
	case "", "mock":
		return relayer.NewMockRelayer(), nil
	default:
		return nil, fmt.Errorf("unknown RELAYER_MODE %q", cfg.RelayerMode)
	}
}

// loadOrGenerateServerKey loads the server's own Ed25519 signing key from
// disk, generating and persisting one on first run.
func loadOrGenerateServerKey(cfg *config.Config) (ed25519.PrivateKey, error) {
	keyPath := cfg.Ed25519KeyPath
	if keyPath == "" {
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		keyPath = filepath.Join(dataDir, "server_ed25519_key.hex")
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(priv)), 0600); err != nil {
			return nil, fmt.Errorf("save ed25519 key: %w", err)
		}
		return priv, nil
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ed25519 key: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 key size: expected %d, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}
