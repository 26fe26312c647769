package events

import (
	"time"
)

// EventType identifies an event class.
type EventType string

// Pipeline lifecycle events published by the resolution pipeline.
const (
	EventPipelineStarted   EventType = "pipeline.started"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventPipelineFailed    EventType = "pipeline.failed"

	EventTrackMatched EventType = "track.matched"
	EventTrackNoMatch EventType = "track.nomatch"

	EventSourceResolved    EventType = "source.resolved"
	EventKeyRotated        EventType = "search.key.rotated"
	EventFallbackEngaged   EventType = "search.fallback.engaged"
	EventDownloadCompleted EventType = "download.completed"
	EventDownloadBlocked   EventType = "download.blocked"

	EventReachabilityChanged EventType = "reachability.changed"
)

// Priority orders events for consumers that care.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Event is a single bus message.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Priority  Priority               `json:"priority"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventFilter selects events for a subscription. Empty fields match all.
type EventFilter struct {
	Types   []EventType
	Sources []string
}

// EventHandler consumes a matched event.
type EventHandler func(Event) error

// Subscription ties a filter to a handler.
type Subscription struct {
	ID           string
	Filter       EventFilter
	Handler      EventHandler
	Created      time.Time
	TriggerCount int64
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(e Event) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == e.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Sources) > 0 {
		ok := false
		for _, s := range f.Sources {
			if s == e.Source {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
