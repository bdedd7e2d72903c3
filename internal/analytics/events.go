// Package analytics aggregates search and commit activity in process:
// query popularity, zero-result queries, latency percentiles and indexing
// throughput. Events can also be exported to Kafka and snapshots persisted
// to PostgreSQL.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventCommit EventType = "commit"
)

// Event is one tracked occurrence. Search fields are empty for commits and
// the other way round.
type Event struct {
	Type       EventType `json:"type"`
	Kind       string    `json:"kind,omitempty"`
	Query      string    `json:"query,omitempty"`
	TotalHits  int       `json:"total_hits"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	Documents  int       `json:"documents,omitempty"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}
