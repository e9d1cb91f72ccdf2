package client

import (
	"sync"

	"codeberg.org/mutker/cpupowerctl/internal/errors"
	"codeberg.org/mutker/cpupowerctl/internal/logger"
)

// Operation is one queued mutating call against the privileged service.
// Group and Gating express intra-group dependencies: when a gating operation
// fails, the remaining queued operations of the same group are dropped
// without touching other groups.
type Operation struct {
	Method      string
	Args        []interface{}
	Description string
	Group       string
	Gating      bool
}

// Scheduler serializes mutating calls: a FIFO drained by a single worker,
// at most one operation in flight. Batches aggregate per-operation failures
// into one completion event. Queue and batch state are owned exclusively by
// the scheduler; callers observe it only through the event channel.
type Scheduler struct {
	caller Caller
	events chan Event

	mu         sync.Mutex
	queue      []Operation
	inFlight   bool
	batchOpen  bool
	batchLive  bool
	failures   []string
	skipGroups map[string]bool
}

func NewScheduler(caller Caller) *Scheduler {
	return &Scheduler{
		caller:     caller,
		events:     make(chan Event, 32),
		skipGroups: make(map[string]bool),
	}
}

// Events returns the single-consumer notification channel. Progress and
// batch-completion events are delivered here in order.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Enqueue appends an operation. Outside a batch, processing starts
// immediately unless the worker is already draining.
func (s *Scheduler) Enqueue(op Operation) {
	s.mu.Lock()
	s.queue = append(s.queue, op)
	start := !s.inFlight && !s.batchOpen
	if start {
		s.inFlight = true
	}
	s.mu.Unlock()

	if start {
		s.emit(Event{Type: EventProgress, Data: ProgressData{InFlight: true}})
		go s.drain()
	}
}

// BeginBatch opens a batch span. Operations enqueued until EndBatch do not
// start processing on their own.
func (s *Scheduler) BeginBatch() {
	s.mu.Lock()
	s.batchOpen = true
	s.batchLive = true
	s.failures = nil
	s.mu.Unlock()
}

// EndBatch closes the span and triggers draining. An empty queue with no
// work in flight completes immediately with (true, []).
func (s *Scheduler) EndBatch() {
	s.mu.Lock()
	s.batchOpen = false

	if s.inFlight {
		s.mu.Unlock()
		return
	}

	if len(s.queue) == 0 {
		s.batchLive = false
		s.mu.Unlock()
		s.emit(Event{Type: EventBatchDone, Data: BatchDoneData{Succeeded: true, Errors: []string{}}})
		return
	}

	s.inFlight = true
	s.mu.Unlock()

	s.emit(Event{Type: EventProgress, Data: ProgressData{InFlight: true}})
	go s.drain()
}

// drain is the single worker. Only one instance runs at a time: it is
// spawned exclusively under the inFlight transition from false to true.
func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.inFlight = false
			finishBatch := s.batchLive && !s.batchOpen
			var failures []string
			if finishBatch {
				failures = s.failures
				s.batchLive = false
				s.failures = nil
			} else if !s.batchLive {
				// Failures outside any batch have nowhere to report
				s.failures = nil
			}
			s.skipGroups = make(map[string]bool)
			s.mu.Unlock()

			s.emit(Event{Type: EventProgress, Data: ProgressData{InFlight: false}})
			if finishBatch {
				if failures == nil {
					failures = []string{}
				}
				s.emit(Event{Type: EventBatchDone, Data: BatchDoneData{
					Succeeded: len(failures) == 0,
					Errors:    failures,
				}})
			}
			return
		}

		op := s.queue[0]
		s.queue = s.queue[1:]
		skip := op.Group != "" && s.skipGroups[op.Group]
		s.mu.Unlock()

		if skip {
			logger.Debug().Str("description", op.Description).Msg("Skipping operation after gating failure")
			continue
		}

		if err := s.execute(op); err != nil {
			logger.Warn().Err(err).Str("description", op.Description).Msg("Operation failed")
			s.mu.Lock()
			s.failures = append(s.failures, op.Description+": "+err.Error())
			if op.Gating && op.Group != "" {
				s.skipGroups[op.Group] = true
			}
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) execute(op Operation) error {
	errFactory := errors.New()

	if !s.caller.Connected() {
		return errFactory.New(ErrNotConnected)
	}

	code, err := s.caller.Call(op.Method, op.Args...)
	if err != nil {
		return err
	}

	switch code {
	case 0:
		return nil
	case -13:
		return errFactory.New(ErrWriteFailed)
	default:
		return errFactory.New(ErrUnitUnavailable)
	}
}

// emit delivers an event to the consumer. Progress events are best effort:
// when the consumer has fallen far enough behind to fill the buffer they are
// dropped rather than wedging the worker. Batch completion fires exactly
// once per batch and must not be lost, so it blocks until delivered.
func (s *Scheduler) emit(event Event) {
	if event.Type == EventBatchDone {
		s.events <- event
		return
	}

	select {
	case s.events <- event:
	default:
		logger.Warn().Int("type", int(event.Type)).Msg("Dropping progress event, consumer not keeping up")
	}
}
