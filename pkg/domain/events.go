package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRead    EventType = "read"
	EventWrite   EventType = "write"
	EventLock    EventType = "lock"
	EventDestroy EventType = "destroy"
	EventSweep   EventType = "sweep"
)

// ReadOutcome classifies what a read returned.
type ReadOutcome string

const (
	ReadHit       ReadOutcome = "hit"       // live row returned
	ReadMiss      ReadOutcome = "miss"      // no row
	ReadExpired   ReadOutcome = "expired"   // row present but logically expired
	ReadRecovered ReadOutcome = "recovered" // lost the first-insert race, re-read the winner's row
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
}

// ReadEvent is emitted after every successful read.
type ReadEvent struct {
	EventBase
	Outcome ReadOutcome `json:"outcome"`
	Bytes   int         `json:"bytes"`
}

// WriteEvent is emitted after every successful write.
type WriteEvent struct {
	EventBase
	Bytes  int   `json:"bytes"`
	Expiry int64 `json:"expiry"`
}

// LockEvent is emitted after every lock acquisition attempt.
type LockEvent struct {
	EventBase
	Wait time.Duration `json:"wait"`
	Err  error         `json:"-"`
}

// DestroyEvent is emitted after a session row is deleted by id.
type DestroyEvent struct {
	EventBase
}

// SweepEvent is emitted after the garbage collector ran.
type SweepEvent struct {
	EventBase
	Deleted int64 `json:"deleted"`
	Err     error `json:"-"`
}

// LifecycleHooks defines callbacks for store observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnRead    func(context.Context, *ReadEvent)
	OnWrite   func(context.Context, *WriteEvent)
	OnLock    func(context.Context, *LockEvent)
	OnDestroy func(context.Context, *DestroyEvent)
	OnSweep   func(context.Context, *SweepEvent)
}
