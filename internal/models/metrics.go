package models

// LogFile is the size of one managed log file, in megabytes.
type LogFile struct {
	File string  `json:"file"`
	Size float64 `json:"size"`
}

// MetricsSnapshot is the point-in-time view served by GET /metrics.
// A new value is built for every request and never mutated afterwards.
type MetricsSnapshot struct {
	// ── Connections ──────────────────────────────────────────────────────────
	OpenAIConnections int `json:"openaiConnections"` // external gateway
	AgentConnections  int `json:"agentConnections"`  // internal gateway

	// ── Process ──────────────────────────────────────────────────────────────
	ServerUptime float64  `json:"serverUptime"`         // seconds
	MemoryUsage  float64  `json:"memoryUsage"`          // Go heap in use, MB
	Goroutines   int      `json:"goroutines"`           //
	ProcessRSS   *float64 `json:"processRSS,omitempty"` // MB, nil when unavailable

	// ── Logs (only with log rotation enabled) ────────────────────────────────
	LogFiles []LogFile `json:"logFiles,omitempty"`
}
