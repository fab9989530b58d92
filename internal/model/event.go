package model

import (
	"time"
)

// Delivery statuses recorded for an event.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// UserData carries caller-identifying fields of an event.
type UserData struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	ZipCode    string `json:"zip_code,omitempty"`
	FBP        string `json:"fbp,omitempty"`
}

// EventRequest represents an incoming conversion event payload.
type EventRequest struct {
	EventName      string         `json:"event_name" validate:"required"`
	PixelID        string         `json:"pixel_id,omitempty"`
	EventTime      int64          `json:"event_time,omitempty"`
	EventID        string         `json:"event_id,omitempty"`
	EventSourceURL string         `json:"event_source_url,omitempty" validate:"omitempty,url"`
	Domain         string         `json:"domain,omitempty"`
	UserData       UserData       `json:"user_data,omitempty"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// NormalizedEvent is the canonical in-memory shape of a validated event.
// It is created per request and never shared across requests.
type NormalizedEvent struct {
	EventName      string
	PixelID        string
	EventTime      int64
	EventID        string
	EventSourceURL string
	UserData       UserData
	CustomData     map[string]any
}

// DeliveryResult reports the outcome of one delivery pipeline run.
type DeliveryResult struct {
	Status          string `json:"status"`
	EventID         string `json:"event_id"`
	TraceID         string `json:"trace_id,omitempty"`
	EventsReceived  int    `json:"events_received"`
	ResponsePayload string `json:"response_payload,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	AttemptCount    int    `json:"attempt_count"`
}

// Event is the delivery record persisted in the database. Status updates are
// written as new row versions, so UpdatedAt doubles as the version column.
type Event struct {
	ID              string
	PixelID         string
	EventName       string
	EventTime       time.Time
	Status          string
	UserData        UserData
	CustomData      map[string]any
	ResponsePayload string
	TraceID         string
	ErrorMessage    string
	AttemptCount    uint8
	UpdatedAt       time.Time
}
