package domain

import "time"

const (
	EventJobSubmitted  = "job_submitted"
	EventJobUpdated    = "job_updated"
	EventJobEnqueued   = "job_enqueued"
	EventJobScheduled  = "job_scheduled"
	EventJobDispatched = "job_dispatched"
	EventJobPending    = "job_pending"
	EventJobRequeued   = "job_requeued"
	EventJobManualRun  = "job_manual_run"
)

// Event is the envelope published on the in-process bus and streamed over
// /events/stream. Payloads carry a "domain" key for tenant filtering.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
	TS      time.Time      `json:"ts"`
}

// EventDomain extracts the tenant from the payload, empty when absent.
func (e Event) EventDomain() string {
	d, _ := e.Payload["domain"].(string)
	return d
}

// LogChunk is one line of captured job output on the log stream.
type LogChunk struct {
	RunID    string    `json:"run_id"`
	JobID    string    `json:"job_id"`
	WorkerID string    `json:"worker_id"`
	Domain   string    `json:"domain"`
	TS       time.Time `json:"ts"`
	Stream   string    `json:"stream"` // stdout or stderr
	Text     string    `json:"text"`
}
