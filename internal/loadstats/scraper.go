package loadstats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// snapshot holds the tracked server metrics at one point in time.
type snapshot struct {
	at           time.Time
	connections  float64
	messages     float64
	rooms        float64
	waiting      float64
	latencySum   float64
	latencyCount float64
	matchSum     float64
	matchCount   float64
}

// Scraper periodically fetches the server's /metrics endpoint during a run.
type Scraper struct {
	metricsURL string
	interval   time.Duration
	client     *http.Client

	mu        sync.Mutex
	snapshots []snapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper creates a Scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		metricsURL: metricsURL,
		interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// Start takes a snapshot now and then every interval until Stop or ctx ends.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrapeOnce()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.scrapeOnce()
				return
			case <-ticker.C:
				s.scrapeOnce()
			}
		}
	}()
}

// Stop ends scraping and waits for the final snapshot.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scraper) scrapeOnce() {
	resp, err := s.client.Get(s.metricsURL)
	if err != nil {
		return // server may not be up yet
	}
	defer resp.Body.Close()

	snap, err := parseSnapshot(resp.Body)
	if err != nil {
		return
	}
	snap.at = time.Now()

	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

// parseSnapshot reads the Prometheus text exposition format. Labelled series
// of the same metric are summed.
func parseSnapshot(r io.Reader) (snapshot, error) {
	var snap snapshot
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		name, value, ok := parseMetricLine(line)
		if !ok {
			continue
		}
		switch name {
		case "orbit_connections_total":
			snap.connections = value
		case "orbit_messages_total":
			snap.messages += value
		case "orbit_active_rooms":
			snap.rooms = value
		case "orbit_waiting_pool_size":
			snap.waiting = value
		case "orbit_message_latency_seconds_sum":
			snap.latencySum = value
		case "orbit_message_latency_seconds_count":
			snap.latencyCount = value
		case "orbit_match_wait_seconds_sum":
			snap.matchSum = value
		case "orbit_match_wait_seconds_count":
			snap.matchCount = value
		}
	}
	return snap, sc.Err()
}

// parseMetricLine splits `name{labels} value` into the bare name and value.
func parseMetricLine(line string) (string, float64, bool) {
	name := ""
	raw := line
	if i := strings.IndexByte(raw, '{'); i != -1 {
		j := strings.IndexByte(raw[i:], '}')
		if j == -1 {
			return "", 0, false
		}
		name = raw[:i]
		raw = name + raw[i+j+1:]
	}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return "", 0, false
	}
	if name == "" {
		name = fields[0]
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, false
	}
	return name, v, true
}

// Report writes initial, final, delta and peak for each gauge, and histogram
// averages over the run.
func (s *Scraper) Report(w io.Writer) {
	s.mu.Lock()
	snaps := append([]snapshot(nil), s.snapshots...)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Fprintln(w, "\n--- Server Metrics (no data collected) ---")
		return
	}
	first, last := snaps[0], snaps[len(snaps)-1]

	fmt.Fprintln(w, "\n--- Server Metrics (Prometheus) ---")
	fmt.Fprintf(w, "  Scrape count:  %d snapshots over %s\n\n", len(snaps), last.at.Sub(first.at).Round(time.Second))
	fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta", "Peak")

	for _, g := range []struct {
		label string
		get   func(snapshot) float64
	}{
		{"Connections", func(s snapshot) float64 { return s.connections }},
		{"Active Rooms", func(s snapshot) float64 { return s.rooms }},
		{"Waiting Pool", func(s snapshot) float64 { return s.waiting }},
		{"Messages Total", func(s snapshot) float64 { return s.messages }},
	} {
		initial, final := g.get(first), g.get(last)
		fmt.Fprintf(w, "  %-16s %10.0f %10.0f %10.0f %10.0f\n", g.label, initial, final, final-initial, peak(snaps, g.get))
	}

	fmt.Fprintln(w)
	histogramAvg(w, "Msg Latency", last.latencySum-first.latencySum, last.latencyCount-first.latencyCount)
	histogramAvg(w, "Match Wait", last.matchSum-first.matchSum, last.matchCount-first.matchCount)
}

func histogramAvg(w io.Writer, label string, sum, count float64) {
	if count <= 0 {
		fmt.Fprintf(w, "  %-16s avg: N/A  (no observations)\n", label)
		return
	}
	fmt.Fprintf(w, "  %-16s avg: %.4fs  (%.0f observations)\n", label, sum/count, count)
}

func peak(snaps []snapshot, get func(snapshot) float64) float64 {
	p := math.Inf(-1)
	for _, s := range snaps {
		if v := get(s); v > p {
			p = v
		}
	}
	return p
}
