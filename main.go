package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telagent/gateway/internal/agentsvc"
	"github.com/telagent/gateway/internal/auth"
	"github.com/telagent/gateway/internal/config"
	"github.com/telagent/gateway/internal/graph"
	"github.com/telagent/gateway/internal/obo"
	"github.com/telagent/gateway/internal/repository"
	"github.com/telagent/gateway/internal/secured"
	"github.com/telagent/gateway/internal/service"
	transport "github.com/telagent/gateway/internal/transport/http"
	"github.com/telagent/gateway/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting gateway...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Agent endpoint: %s", cfg.AgentEndpoint)

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize flow store: fast in-memory tier over the durable one
	flows := auth.NewTieredFlowStore(
		auth.NewMemoryFlowStore(cfg.FlowTTL),
		repository.NewFlowStore(db),
	)

	ctx := context.Background()

	// Initialize authenticator
	authn, err := auth.NewAuthenticator(ctx, cfg, flows)
	if err != nil {
		log.Fatalf("Failed to initialize authenticator: %v", err)
	}
	roles := auth.RoleResolver{AdminGroupID: cfg.AdminGroupID, UserGroupID: cfg.UserGroupID}

	// Initialize downstream clients
	agents := agentsvc.NewClient(cfg.AgentEndpoint, cfg.AgentProjectID, cfg.HTTPClientTimeout)
	graphClient := graph.NewClient(cfg.GraphEndpoint, cfg.HTTPClientTimeout)
	exchanger := obo.NewExchanger(cfg.TenantID, cfg.BackendClientID, cfg.BackendClientSecret, cfg.HTTPClientTimeout)

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}
	securedSvc := secured.New(db, policyEngine)

	// Initialize service
	svc := service.New(db, agents, graphClient, exchanger, securedSvc, cfg)

	// Initialize HTTP server
	h := transport.NewHandler(svc, authn, roles, db, securedSvc, cfg)
	server := transport.NewServer(h)

	// Expire abandoned sign-in flows in the durable tier
	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeLoop(purgeCtx, db, cfg.FlowTTL)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Gateway started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Gateway stopped")
}

func purgeLoop(ctx context.Context, db *repository.SQLiteStore, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.PurgeAuthFlowsBefore(ctx, time.Now().Add(-ttl)); err != nil {
				log.Printf("WARN: failed to purge stale auth flows: %v", err)
			}
		}
	}
}
