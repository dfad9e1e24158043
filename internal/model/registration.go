package model

import "time"

// Registration is the join row between an event and one attendee.
//
// HostID is copied from the event when the row is created so "events I host"
// and "events I attend" are both single-column lookups on this table.
type Registration struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	HostID     string    `json:"host"`
	AttendeeID string    `json:"attendee"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RegistrationView is the assembled response of a successful registration.
type RegistrationView struct {
	ID           string      `json:"id"`
	EventDetails EventInfo   `json:"eventDetails"`
	Host         UserSummary `json:"host"`
	Attendee     UserSummary `json:"attendee"`
	CreatedAt    time.Time   `json:"createdAt"`
}
