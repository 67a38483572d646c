package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventIndexReload EventType = "index_reload"
)

type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Terms        []string  `json:"terms"`
	TotalHits    int       `json:"total_hits"`
	Returned     int       `json:"returned"`
	ObjectHits   int       `json:"object_hits"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	IndexVersion string    `json:"index_version"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

// ReloadEvent records one attempt to replace the live index.
type ReloadEvent struct {
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version,omitempty"`
	Documents int       `json:"documents"`
	Objects   int       `json:"objects"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
