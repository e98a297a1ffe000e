package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/orbit/chat-app/internal/loadstats"
)

// runSaturate opens the requested number of connections over the ramp
// period and holds them, reporting connections the server dropped.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	connections := fs.Int("connections", 1000, "Number of connections to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration")
	hold := fs.Duration("hold", 30*time.Second, "Hold duration after all connections are open")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	fs.Parse(args)

	fmt.Printf("Saturate test: %d connections to %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*connections, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := loadstats.NewCollector()
	scraper := loadstats.NewScraper(*metricsURL, 2*time.Second)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	var mu sync.Mutex
	bots := make([]*bot, 0, *connections)

	fmt.Println("\n--- Ramp-up phase ---")
	rampStart := time.Now()
	interrupted := ramp(ctx, *connections, *rampUp, *concurrency, func() {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		b, err := dialBot(connCtx, *url)
		if err != nil {
			collector.AddError()
			return
		}
		collector.AddConnect(b.connectLatency)
		mu.Lock()
		bots = append(bots, b)
		mu.Unlock()
	})
	fmt.Printf("\nRamp-up complete: %d/%d connections in %s (%d errors)\n",
		collector.ConnectionCount(), *connections,
		time.Since(rampStart).Round(time.Millisecond), collector.ErrorCount())

	if !interrupted {
		fmt.Printf("\n--- Hold phase (%s) ---\n", *hold)
		holdTimer := time.NewTimer(*hold)
		status := time.NewTicker(5 * time.Second)
	holdLoop:
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nInterrupted during hold phase.")
				break holdLoop
			case <-holdTimer.C:
				break holdLoop
			case <-status.C:
				mu.Lock()
				alive := 0
				for _, b := range bots {
					select {
					case <-b.closed:
					default:
						alive++
					}
				}
				total := len(bots)
				mu.Unlock()
				fmt.Printf("  [hold] alive: %d/%d  dropped: %d\n", alive, total, total-alive)
			}
		}
		holdTimer.Stop()
		status.Stop()
	}

	closeAll(bots, &mu)
	scraper.Stop()
	collector.Report(os.Stdout)
}

// ramp calls launch n times spread over the ramp period with at most
// concurrency calls in flight. It reports whether ctx ended first.
func ramp(ctx context.Context, n int, period time.Duration, concurrency int, launch func()) bool {
	interval := period / time.Duration(n)
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for launched := 0; launched < n; {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
			return true
		case <-ticker.C:
			launched++
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				launch()
			}()
		}
	}
	return false
}

func closeAll(bots []*bot, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Printf("\nClosing %d connections...\n", len(bots))
	for _, b := range bots {
		b.Close()
	}
}
