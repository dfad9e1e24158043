package model

import "time"

// DefaultRefundPolicy is applied when an event is created without one.
const DefaultRefundPolicy = "Contact the organizer for any refund related information"

// Venue is the physical location of an offline event.
type Venue struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Long    float64 `json:"long"`
}

// Event is a scheduled happening created by exactly one host.
//
// StartTime/EndTime are wall-clock "HH:MM" strings; StartDate/EndDate are
// calendar dates stored at midnight UTC. HostID never changes after creation.
type Event struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	IsEventOnline   bool      `json:"isEventOnline"`
	Venue           *Venue    `json:"venue,omitempty"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Thumbnail       string    `json:"thumbnail"`
	HostID          string    `json:"host"`
	RegistrationFee float64   `json:"registrationFee"`
	RefundPolicy    string    `json:"refundPolicy"`
	Tags            []string  `json:"tags"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EventSummary is the row shape of the "all events" listing.
type EventSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	IsEventOnline   bool      `json:"isEventOnline"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	Thumbnail       string    `json:"thumbnail"`
	RegistrationFee float64   `json:"registrationFee"`
}

// EventDetail is a single event joined with its host and attendee count.
type EventDetail struct {
	Event
	Host          UserSummary `json:"host"`
	AttendeeCount int         `json:"attendeeCount"`
}

// EventInfo is the event as embedded in a registration view: every field
// except tags and thumbnail.
type EventInfo struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	IsEventOnline   bool      `json:"isEventOnline"`
	Venue           *Venue    `json:"venue,omitempty"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	HostID          string    `json:"host"`
	RegistrationFee float64   `json:"registrationFee"`
	RefundPolicy    string    `json:"refundPolicy"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:              e.ID,
		Title:           e.Title,
		IsEventOnline:   e.IsEventOnline,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		Thumbnail:       e.Thumbnail,
		RegistrationFee: e.RegistrationFee,
	}
}

func (e *Event) Info() EventInfo {
	return EventInfo{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		IsEventOnline:   e.IsEventOnline,
		Venue:           e.Venue,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		HostID:          e.HostID,
		RegistrationFee: e.RegistrationFee,
		RefundPolicy:    e.RefundPolicy,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}
