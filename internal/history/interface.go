package history

import (
	"context"
	"time"
)

// Recorder is the domain interface for the applied-settings history.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Repository defines the interface for history storage
type Repository interface {
	Record(entry *Entry) error
	Close() error
}

// Entry is one mutating call applied (or attempted) by the helper.
type Entry struct {
	Timestamp time.Time
	CPU       int
	Action    string
	Value     string
	Caller    string
	Code      int
}
