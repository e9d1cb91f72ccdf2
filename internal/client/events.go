package client

// EventType represents the type of scheduler event
type EventType int

const (
	EventProgress EventType = iota
	EventBatchDone
)

// Event is a scheduler notification delivered on a single-consumer channel
type Event struct {
	Type EventType
	Data interface{}
}

// ProgressData reports whether the scheduler currently has work in flight
type ProgressData struct {
	InFlight bool
}

// BatchDoneData carries the aggregated outcome of a completed batch
type BatchDoneData struct {
	Succeeded bool
	Errors    []string
}
