package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/orbit/chat-app/internal/loadstats"
	"github.com/orbit/chat-app/internal/protocol"
)

// runChat runs full pair lifecycles: both users connect, one waits while the
// other searches, they exchange messages and one of them leaves. Match and
// message latencies are recorded per pair.
func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	pairs := fs.Int("pairs", 200, "Number of user pairs")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for pair creation")
	messages := fs.Int("messages", 5, "Messages sent per pair")
	msgInterval := fs.Duration("msg-interval", time.Second, "Pause between messages (server allows 10 per 10s)")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-step timeout")
	concurrency := fs.Int("concurrency", 50, "Maximum pairs in flight")
	metricsURL := fs.String("metrics-url", "http://localhost:8080/metrics", "Prometheus metrics endpoint URL")
	fs.Parse(args)

	fmt.Printf("Chat test: %d pairs to %s (ramp=%s, messages=%d, interval=%s)\n",
		*pairs, *url, *rampUp, *messages, *msgInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := loadstats.NewCollector()
	scraper := loadstats.NewScraper(*metricsURL, 2*time.Second)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	var completed atomic.Int64
	progressStop := make(chan struct{})
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [chat] pairs done: %d/%d  connections: %d  errors: %d\n",
					completed.Load(), *pairs, collector.ConnectionCount(), collector.ErrorCount())
			case <-progressStop:
				return
			}
		}
	}()

	p := pairRun{
		url:         *url,
		messages:    *messages,
		msgInterval: *msgInterval,
		timeout:     *timeout,
		collector:   collector,
	}
	start := time.Now()
	ramp(ctx, *pairs, *rampUp, *concurrency, func() {
		if err := p.run(ctx); err != nil {
			collector.AddError()
			return
		}
		completed.Add(1)
	})
	close(progressStop)
	progressWg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("\n--- Chat Results ---\n")
	fmt.Printf("Completed pairs:  %d / %d\n", completed.Load(), *pairs)
	fmt.Printf("Duration:         %s\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Printf("Throughput:       %.1f pairs/s\n", float64(completed.Load())/elapsed.Seconds())
	}

	scraper.Stop()
	collector.Report(os.Stdout)
}

type pairRun struct {
	url         string
	messages    int
	msgInterval time.Duration
	timeout     time.Duration
	collector   *loadstats.Collector
}

func (p pairRun) run(ctx context.Context) error {
	step := func() (context.Context, context.CancelFunc) { return context.WithTimeout(ctx, p.timeout) }

	sctx, cancel := step()
	a, err := dialBot(sctx, p.url)
	cancel()
	if err != nil {
		return err
	}
	defer a.Close()
	p.collector.AddConnect(a.connectLatency)

	sctx, cancel = step()
	b, err := dialBot(sctx, p.url)
	cancel()
	if err != nil {
		return err
	}
	defer b.Close()
	p.collector.AddConnect(b.connectLatency)

	// Both sides share a tag no other pair uses. Under the strict strategy
	// users with disjoint interests never pair, so pairs stay isolated. a waits
	// first so b's search is the one that forms the room.
	tag := "lt-" + a.id
	sctx, cancel = step()
	defer cancel()
	if err := a.search("male", "female", tag); err != nil {
		return err
	}
	if _, err := a.await(sctx, protocol.TypeWaiting); err != nil {
		return err
	}
	searched := time.Now()
	if err := b.search("female", "male", tag); err != nil {
		return err
	}
	matched, err := b.await(sctx, protocol.TypeMatched)
	if err != nil {
		return err
	}
	p.collector.AddMatch(matched.at.Sub(searched))
	room := matched.msg.(protocol.MatchedMsg).RoomID
	if _, err := a.await(sctx, protocol.TypeMatched); err != nil {
		return err
	}

	for i := 0; i < p.messages; i++ {
		if i > 0 {
			time.Sleep(p.msgInterval)
		}
		mctx, mcancel := step()
		sent := time.Now()
		err := a.conn.Send(protocol.TypeMessage, protocol.ChatMsg{RoomID: room, Text: fmt.Sprintf("message %d", i)})
		if err == nil {
			var got frame
			got, err = b.await(mctx, protocol.TypeMessageReceived)
			if err == nil {
				p.collector.AddMsgLatency(got.at.Sub(sent))
			}
		}
		mcancel()
		if err != nil {
			return err
		}
	}

	if err := a.conn.Send(protocol.TypeLeave, protocol.LeaveMsg{RoomID: room}); err != nil {
		return err
	}
	lctx, lcancel := step()
	defer lcancel()
	_, err = b.await(lctx, protocol.TypePartnerLeft)
	return err
}
