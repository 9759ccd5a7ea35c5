// Package watch delivers project and report change notifications to
// subscribers. Brokers are backend independent: an in-process Hub for a
// single instance, RedisBroker for several instances behind a load balancer.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType names a lifecycle change.
type EventType string

const (
	ProjectCreated EventType = "project.created"
	ProjectUpdated EventType = "project.updated"
	ProjectDeleted EventType = "project.deleted"
	ReportCreated  EventType = "report.created"
	ReportUpdated  EventType = "report.updated"
	ReportDeleted  EventType = "report.deleted"
)

// TopicProjects receives every project-level change.
const TopicProjects = "projects"

// Event is a single change notification.
type Event struct {
	Type      EventType       `json:"type"`
	ProjectID string          `json:"project_id"`
	ReportID  string          `json:"report_id,omitempty"`
	At        time.Time       `json:"at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event carrying payload as its data.
func NewEvent(typ EventType, projectID, reportID string, payload any) (Event, error) {
	ev := Event{
		Type:      typ,
		ProjectID: projectID,
		ReportID:  reportID,
		At:        time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event payload: %w", err)
		}
		ev.Data = data
	}
	return ev, nil
}

// Topics returns the topics an event is delivered to: always its project,
// plus TopicProjects for project-level changes.
func (e Event) Topics() []string {
	switch e.Type {
	case ProjectCreated, ProjectUpdated, ProjectDeleted:
		return []string{e.ProjectID, TopicProjects}
	default:
		return []string{e.ProjectID}
	}
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscriber opens a subscription to a topic. The returned channel is closed
// once ctx is done; cancelling ctx is how callers unsubscribe.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
}

// Broker both publishes and subscribes.
type Broker interface {
	Publisher
	Subscriber
}

// Fanout publishes each event to every publisher in order and joins their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// subscriberBuffer is the per-subscription channel capacity. Events beyond it
// are dropped for that subscriber instead of blocking the publisher.
const subscriberBuffer = 32
