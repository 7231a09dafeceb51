package models

import "time"

type EventType string

const (
	EventTypeIncident    EventType = "incident"
	EventTypeMaintenance EventType = "maintenance"
)

type EventStatus string

const (
	StatusOpen   EventStatus = "open"
	StatusClosed EventStatus = "closed"

	StatusPlanning  EventStatus = "planning"
	StatusStarted   EventStatus = "started"
	StatusCompleted EventStatus = "completed"
)

// IsValidStatus reports whether status belongs to the lifecycle of the given event type.
func IsValidStatus(t EventType, status EventStatus) bool {
	switch t {
	case EventTypeIncident:
		return status == StatusOpen || status == StatusClosed
	case EventTypeMaintenance:
		return status == StatusPlanning || status == StatusStarted || status == StatusCompleted
	}
	return false
}

type Event struct {
	ID        int64     `json:"id" db:"id"`
	Type      EventType `json:"type" db:"event_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventUpdate struct {
	ID        int64     `json:"id" db:"id"`
	EventID   int64     `json:"event_id" db:"event_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Text      string    `json:"text" db:"update_text"`
	Author    string    `json:"author" db:"author"`
}

// EventDetail is the full aggregate: the event row plus every satellite row.
type EventDetail struct {
	Event
	Start       time.Time     `json:"start"`
	End         *time.Time    `json:"end,omitempty"`
	Description string        `json:"description"`
	Status      EventStatus   `json:"status"`
	Impact      string        `json:"impact,omitempty"`
	Coordinator string        `json:"coordinator,omitempty"`
	Recipient   *Recipient    `json:"recipient,omitempty"`
	User        string        `json:"user"`
	Services    []Service     `json:"services"`
	Updates     []EventUpdate `json:"updates"`
}

// ServiceIDs returns the ids of the services the event touches.
func (d EventDetail) ServiceIDs() []int64 {
	ids := make([]int64, 0, len(d.Services))
	for _, s := range d.Services {
		ids = append(ids, s.ID)
	}
	return ids
}

func (d EventDetail) IsOpen() bool {
	return d.Status == StatusOpen || d.Status == StatusStarted
}

// EventSummary is one event row as shown on the dashboard and in search results.
type EventSummary struct {
	ID          int64       `json:"id"`
	Type        EventType   `json:"type"`
	Start       time.Time   `json:"start"`
	End         *time.Time  `json:"end,omitempty"`
	Description string      `json:"description"`
	Status      EventStatus `json:"status"`
}

// ServiceEvent ties an event summary to one of the services it touches.
type ServiceEvent struct {
	ServiceID int64
	EventSummary
}

type EventSearch struct {
	From   time.Time
	To     time.Time
	Type   EventType
	Status EventStatus
	Text   string
	Limit  int
}
