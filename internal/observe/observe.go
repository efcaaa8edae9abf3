// Package observe emits structured lifecycle events while a teardown runs.
package observe

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Observer receives structured events during discovery and execution.
type Observer interface {
	Printf(format string, v ...interface{})
	Event(event Event)
}

// Event is a single structured occurrence in a run.
type Event struct {
	Type      EventType
	Phase     string
	Resource  string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType classifies events.
type EventType string

const (
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPhaseFailed    EventType = "phase.failed"

	EventResourceDeleting  EventType = "resource.deleting"
	EventResourceDeleted   EventType = "resource.deleted"
	EventResourceDetaching EventType = "resource.detaching"
	EventResourceSkipped   EventType = "resource.skipped"
	EventResourceFailed    EventType = "resource.failed"
	EventResourceSimulated EventType = "resource.simulated"
	EventResourceRetrying  EventType = "resource.retrying"
)

// Console logs events with the standard log package.
type Console struct{}

// NewConsole creates a console observer.
func NewConsole() *Console { return &Console{} }

func (c *Console) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

func (c *Console) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Print(formatEvent(event))
}

func formatEvent(event Event) string {
	parts := []string{string(event.Type)}
	if event.Phase != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Phase))
	}
	if event.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", event.Resource))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		var fieldParts []string
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}
	return strings.Join(parts, " ")
}

// Discard drops all events; used in tests.
type Discard struct{}

func (Discard) Printf(string, ...interface{}) {}
func (Discard) Event(Event)                   {}
