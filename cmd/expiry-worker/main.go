package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/medibook/appointment-portal/internal/booking"
	"github.com/medibook/appointment-portal/internal/config"
	"github.com/medibook/appointment-portal/internal/db"
)

// The worker reclaims slot capacity held by unpaid pending bookings that
// outlived the pending TTL.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running expiry worker in env=%s interval=%s pending_ttl=%s",
		cfg.Env, cfg.WorkerInterval, cfg.PendingTTL)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	svc := booking.NewService(
		booking.NewPgRepository(pgPool),
		booking.WindowRefundPolicy{Window: cfg.RefundWindow},
	)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.PendingTTL)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.PendingTTL)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, ttl time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	reclaimed, err := svc.ExpireStalePending(runCtx, ttl)
	if err != nil {
		log.Printf("expiry run error: %v", err)
		return
	}
	log.Printf("expiry run complete reclaimed=%d duration=%s", reclaimed, time.Since(start))
}
