package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/broker"
	"github.com/victronenergy/node-red-contrib-victron-sub001/internal/node"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Broker        broker.Stats     `json:"broker"`
	Nodes         NodeMetrics      `json:"nodes"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// NodeMetrics counts deployed nodes.
type NodeMetrics struct {
	Total  int               `json:"total"`
	ByRole map[node.Role]int `json:"by_role"`
	ByFill map[node.Fill]int `json:"by_fill"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns a JSON summary of the bridge.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Broker: s.broker.Stats(),
	}

	nodes := s.flows.Nodes()
	m.Nodes = NodeMetrics{
		Total:  len(nodes),
		ByRole: make(map[node.Role]int),
		ByFill: make(map[node.Fill]int),
	}
	for _, n := range nodes {
		m.Nodes.ByRole[n.Role]++
		if n.Status.Fill != "" {
			m.Nodes.ByFill[n.Status.Fill]++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, m)
}
