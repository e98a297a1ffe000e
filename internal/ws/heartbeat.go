package ws

import (
	"log"
	"time"
)

// HeartbeatConfig controls liveness probing.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping every connection
	Timeout  time.Duration // grace period on top of Interval before eviction
}

// DefaultHeartbeatConfig pings every 30s and evicts after 40s of silence.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// runHeartbeat pings connections on every tick until the server stops.
// Eviction goes through RemoveConnection, so a dead peer is cleaned up
// exactly like an explicit disconnect.
func (s *Server) runHeartbeat(config HeartbeatConfig) {
	if config.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.checkConnections(config, now)
		}
	}
}

// checkConnections evicts connections silent for longer than
// Interval+Timeout and pings the rest. Browsers answer pings on their own,
// and the pong read refreshes LastSeen.
func (s *Server) checkConnections(config HeartbeatConfig, now time.Time) {
	deadline := config.Interval + config.Timeout

	for _, c := range s.conns.All() {
		idle := now.Sub(c.LastSeen())
		if idle > deadline {
			log.Printf("ws: heartbeat timeout conn=%s idle=%s", c.ID, idle.Round(time.Second))
			s.RemoveConnection(c)
			continue
		}
		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed conn=%s: %v", c.ID, err)
			s.RemoveConnection(c)
		}
	}
}
