package loadstats

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}

	s := Summarize(ds)
	assert.Equal(t, 100, s.N)
	assert.Equal(t, 51*time.Millisecond, s.P50)
	assert.Equal(t, 95*time.Millisecond, s.P95)
	assert.Equal(t, 99*time.Millisecond, s.P99)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 50500*time.Microsecond, s.Avg)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddConnect(time.Millisecond)
			c.AddMatch(2 * time.Millisecond)
			c.AddMsgLatency(3 * time.Millisecond)
		}()
	}
	c.AddError()
	wg.Wait()

	assert.Equal(t, 50, c.ConnectionCount())
	assert.Equal(t, 1, c.ErrorCount())

	var buf bytes.Buffer
	c.Report(&buf)
	out := buf.String()
	assert.Contains(t, out, "Connections:  50")
	assert.Contains(t, out, "--- Match Latency ---")
	assert.Contains(t, out, "Error rate:   2.00%")
}

func TestParseMetricLine(t *testing.T) {
	tests := []struct {
		line  string
		name  string
		value float64
		ok    bool
	}{
		{"orbit_active_rooms 3", "orbit_active_rooms", 3, true},
		{`orbit_messages_total{result="relayed"} 12`, "orbit_messages_total", 12, true},
		{`orbit_messages_total{result="relayed" 12`, "", 0, false},
		{"orbit_active_rooms", "", 0, false},
		{"orbit_active_rooms NaNx", "", 0, false},
	}
	for _, tt := range tests {
		name, value, ok := parseMetricLine(tt.line)
		if ok != tt.ok || name != tt.name || value != tt.value {
			t.Errorf("parseMetricLine(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.line, name, value, ok, tt.name, tt.value, tt.ok)
		}
	}
}

func TestScraper(t *testing.T) {
	var mu sync.Mutex
	rooms := 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "# HELP orbit_active_rooms rooms\norbit_active_rooms %d\n", rooms)
		fmt.Fprintln(w, `orbit_messages_total{result="relayed"} 10`)
		fmt.Fprintln(w, `orbit_messages_total{result="dropped"} 2`)
		fmt.Fprintln(w, "orbit_match_wait_seconds_sum 1.5")
		fmt.Fprintf(w, "orbit_match_wait_seconds_count %d\n", rooms)
		rooms += 2
	}))
	defer srv.Close()

	s := NewScraper(srv.URL, 10*time.Millisecond)
	s.Start(context.Background())
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.snapshots) >= 3
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	s.mu.Lock()
	first := s.snapshots[0]
	s.mu.Unlock()
	assert.Equal(t, float64(1), first.rooms)
	assert.Equal(t, float64(12), first.messages)

	var buf bytes.Buffer
	s.Report(&buf)
	assert.Contains(t, buf.String(), "Active Rooms")
	assert.True(t, strings.Contains(buf.String(), "Match Wait"))
}

func TestScraper_NoData(t *testing.T) {
	var buf bytes.Buffer
	NewScraper("http://127.0.0.1:1/metrics", time.Second).Report(&buf)
	assert.Contains(t, buf.String(), "no data collected")
}
