// Package facebook formats and delivers events to the Facebook Conversions
// API. Field names in the wire types are an external contract and must not
// change.
package facebook

import (
	"strings"

	"github.com/google/uuid"

	"conversions-relay-service/internal/model"
)

// actionSource marks events as server-side website conversions.
const actionSource = "website"

// UserData is the Conversions API user-data block.
type UserData struct {
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	Email           []string `json:"em,omitempty"`
	Phone           []string `json:"ph,omitempty"`
	FirstName       []string `json:"fn,omitempty"`
	LastName        []string `json:"ln,omitempty"`
	ExternalID      []string `json:"external_id,omitempty"`
	City            []string `json:"ct,omitempty"`
	State           []string `json:"st,omitempty"`
	Zip             []string `json:"zp,omitempty"`
	Country         []string `json:"country,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
}

// Event is one Conversions API event.
type Event struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// Request is the envelope posted to {pixel_id}/events.
type Request struct {
	Data          []Event `json:"data"`
	AccessToken   string  `json:"access_token"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

// Response is the subset of the upstream reply the client relies on. Parsing
// is defensive; fields beyond these are ignored.
type Response struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
}

// candidate pairs an upstream field with its prospective value. A candidate
// is emitted only when its trimmed value is non-empty, so array fields never
// carry empty-string entries.
type candidate struct {
	value string
	set   func(*UserData, string)
}

// FormatEvent merges a normalized event with its geolocation into the wire
// schema. Geo-derived values fill only fields the event did not already
// carry. An event without an id gets a generated UUID as its deduplication
// key.
func FormatEvent(ev model.NormalizedEvent, geo model.GeoLocation) Event {
	eventID := ev.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	ud := UserData{
		ClientIPAddress: ev.UserData.IP,
		ClientUserAgent: ev.UserData.UserAgent,
	}

	candidates := []candidate{
		{ev.UserData.Email, func(u *UserData, v string) { u.Email = append(u.Email, v) }},
		{ev.UserData.Phone, func(u *UserData, v string) { u.Phone = append(u.Phone, v) }},
		{ev.UserData.FirstName, func(u *UserData, v string) { u.FirstName = append(u.FirstName, v) }},
		{ev.UserData.LastName, func(u *UserData, v string) { u.LastName = append(u.LastName, v) }},
		{ev.UserData.ExternalID, func(u *UserData, v string) { u.ExternalID = append(u.ExternalID, v) }},
		{firstNonEmpty(ev.UserData.City, geo.City), func(u *UserData, v string) { u.City = append(u.City, v) }},
		{firstNonEmpty(ev.UserData.State, geo.Subdivision), func(u *UserData, v string) { u.State = append(u.State, v) }},
		{firstNonEmpty(ev.UserData.ZipCode, geo.Postal), func(u *UserData, v string) { u.Zip = append(u.Zip, v) }},
		{firstNonEmpty(ev.UserData.Country, geo.Country), func(u *UserData, v string) { u.Country = append(u.Country, v) }},
		{ev.UserData.FBP, func(u *UserData, v string) { u.FBP = v }},
	}

	for _, c := range candidates {
		if v := strings.TrimSpace(c.value); v != "" {
			c.set(&ud, v)
		}
	}

	return Event{
		EventName:      ev.EventName,
		EventTime:      ev.EventTime,
		EventID:        eventID,
		ActionSource:   actionSource,
		EventSourceURL: ev.EventSourceURL,
		UserData:       ud,
		CustomData:     ev.CustomData,
	}
}

func firstNonEmpty(own, derived string) string {
	if strings.TrimSpace(own) != "" {
		return own
	}
	return derived
}
