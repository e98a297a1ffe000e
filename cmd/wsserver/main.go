package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbit/chat-app/internal/config"
	"github.com/orbit/chat-app/internal/messaging"
	"github.com/orbit/chat-app/internal/ratelimit"
	"github.com/orbit/chat-app/internal/report"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	log.Printf("Orbit WebSocket server starting")
	log.Printf("  listen_addr:     %s", cfg.WS.ListenAddr)
	log.Printf("  worker_pool:     %d", cfg.WS.WorkerPoolSize)
	log.Printf("  max_connections: %d", cfg.WS.MaxConnections)
	log.Printf("  read_timeout:    %s", cfg.WS.ReadTimeout)
	log.Printf("  write_timeout:   %s", cfg.WS.WriteTimeout)
	log.Printf("  heartbeat:       %s / %s", cfg.WS.Heartbeat.Interval, cfg.WS.Heartbeat.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var d deps
	sinks := report.Fanout{report.LogReporter{}}

	// --- Redis (optional) ---
	if cfg.RedisAddr != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		defer client.Close()
		d.limiter = ratelimit.NewLimiter(client)
		log.Printf("  redis_addr:      %s (rate limiting on)", cfg.RedisAddr)
	}

	// --- NATS (optional) ---
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		nc, err := messaging.Connect(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer nc.Drain()

		publisher := messaging.NewPublisher(nc)
		d.observer = publisher
		sinks = append(sinks, report.ReporterFunc(func(_ context.Context, r report.Report) error {
			return publisher.PublishReport(messaging.ReportEvent{
				RoomID:     r.RoomID,
				ReporterID: r.ReporterID,
				ReportedID: r.ReportedID,
				Reason:     r.Reason,
				At:         r.CreatedAt,
			})
		}))
		log.Printf("  nats_url:        %s (events on)", cfg.NATSURL)
	}

	// --- Postgres (optional) ---
	if cfg.DatabaseURL != "" {
		db, err := report.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open report database: %v", err)
		}
		defer db.Close()
		sinks = append(sinks, report.NewStore(db))
		log.Printf("  database:        configured (reports persisted)")
	}
	d.reporter = sinks

	a := newApp(cfg.WS, d)

	go func() {
		if err := a.server.Start(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Printf("server stopped")
}
