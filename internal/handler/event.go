package handler

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/service"
)

// EventHandler serves the /events routes, registration included.
type EventHandler struct {
	events         *service.EventService
	registrations  *service.RegistrationService
	maxUploadBytes int64
}

func NewEventHandler(events *service.EventService, registrations *service.RegistrationService, maxUploadBytes int64) *EventHandler {
	return &EventHandler{
		events:         events,
		registrations:  registrations,
		maxUploadBytes: maxUploadBytes,
	}
}

// HTTP: GET /events/get-all-events?limit=&offset=
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) error {
	opts, err := listOptions(r)
	if err != nil {
		return err
	}

	events, err := h.events.List(r.Context(), opts)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "Events fetched successfully", events)
	return nil
}

// HTTP: GET /events/get-event-by-id/{eventId}
func (h *EventHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) error {
	id, err := eventIDParam(r)
	if err != nil {
		return err
	}

	detail, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "Event fetched successfully", detail)
	return nil
}

// HandleCreate expects multipart/form-data: the event fields as text parts
// and the image as the "thumbnail" file part.
//
// HTTP: POST /events/add-event
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	if !isMultipart(r) {
		return apperror.ValidationFailed("", "Request must be multipart/form-data")
	}
	if err := parseMultipart(w, r, h.maxUploadBytes); err != nil {
		return err
	}
	defer r.MultipartForm.RemoveAll()

	in, err := eventInputFromForm(r.MultipartForm.Value)
	if err != nil {
		return err
	}

	thumb, file, err := formUpload(r, "thumbnail")
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	event, err := h.events.Create(r.Context(), user, in, thumb)
	if err != nil {
		return err
	}
	respond(w, http.StatusCreated, "Event created successfully", event)
	return nil
}

// HTTP: DELETE /events/delete-event/{eventId}
func (h *EventHandler) HandleDelete(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	id, err := eventIDParam(r)
	if err != nil {
		return err
	}

	if err := h.events.Delete(r.Context(), id, user.ID); err != nil {
		return err
	}
	respond(w, http.StatusOK, "Event deleted successfully", nil)
	return nil
}

// HTTP: POST /events/register-to-event/{eventId}
func (h *EventHandler) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	id, err := eventIDParam(r)
	if err != nil {
		return err
	}

	view, err := h.registrations.Register(r.Context(), id, user)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "User successfully registered for the event", view)
	return nil
}

// HTTP: POST /events/deregister-from-event/{eventId}
func (h *EventHandler) HandleDeregister(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	id, err := eventIDParam(r)
	if err != nil {
		return err
	}

	if err := h.registrations.Deregister(r.Context(), id, user.ID); err != nil {
		return err
	}
	respond(w, http.StatusOK, "User successfully deregistered from the event", nil)
	return nil
}

// HandleUpdateDetails takes a partial update as JSON, or as text fields of a
// multipart or urlencoded form.
//
// HTTP: PATCH /events/update-event-details/{eventId}
func (h *EventHandler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	id, err := eventIDParam(r)
	if err != nil {
		return err
	}

	var patch service.EventPatch
	switch {
	case isMultipart(r):
		if err := parseMultipart(w, r, h.maxUploadBytes); err != nil {
			return err
		}
		defer r.MultipartForm.RemoveAll()
		if patch, err = eventPatchFromForm(r.MultipartForm.Value); err != nil {
			return err
		}
	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"):
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
		if err := r.ParseForm(); err != nil {
			return apperror.ValidationFailed("", "Invalid form body")
		}
		if patch, err = eventPatchFromForm(r.PostForm); err != nil {
			return err
		}
	default:
		var body eventPatchBody
		if err := decodeJSON(w, r, &body); err != nil {
			return err
		}
		patch = body.toPatch()
	}

	event, err := h.events.UpdateDetails(r.Context(), id, user.ID, patch)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "Event details updated successfully", event)
	return nil
}

// HTTP: PATCH /events/update-event-thumbnail/{eventId}
func (h *EventHandler) HandleUpdateThumbnail(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	id, err := eventIDParam(r)
	if err != nil {
		return err
	}
	if !isMultipart(r) {
		return apperror.ValidationFailed("thumbnail", "thumbnail is required")
	}
	if err := parseMultipart(w, r, h.maxUploadBytes); err != nil {
		return err
	}
	defer r.MultipartForm.RemoveAll()

	thumb, file, err := formUpload(r, "thumbnail")
	if err != nil {
		return err
	}
	if file != nil {
		defer file.Close()
	}

	event, err := h.events.UpdateThumbnail(r.Context(), id, user.ID, thumb)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "Event thumbnail updated successfully", event)
	return nil
}

// eventPatchBody is the JSON form of a partial update. Coordinates and the
// fee may be sent as numbers or numeric strings.
type eventPatchBody struct {
	Title           *string      `json:"title"`
	Description     *string      `json:"description"`
	IsEventOnline   *bool        `json:"isEventOnline"`
	Venue           *venueBody   `json:"venue"`
	StartTime       *string      `json:"startTime"`
	EndTime         *string      `json:"endTime"`
	StartDate       *string      `json:"startDate"`
	EndDate         *string      `json:"endDate"`
	RegistrationFee *json.Number `json:"registrationFee"`
	RefundPolicy    *string      `json:"refundPolicy"`
	Tags            []string     `json:"tags"`
}

type venueBody struct {
	Address *string      `json:"address"`
	Lat     *json.Number `json:"lat"`
	Long    *json.Number `json:"long"`
}

func numberPtr(n *json.Number) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}

func (b eventPatchBody) toPatch() service.EventPatch {
	p := service.EventPatch{
		Title:           b.Title,
		Description:     b.Description,
		IsEventOnline:   b.IsEventOnline,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		StartDate:       b.StartDate,
		EndDate:         b.EndDate,
		RegistrationFee: numberPtr(b.RegistrationFee),
		RefundPolicy:    b.RefundPolicy,
		Tags:            b.Tags,
	}
	if b.Venue != nil {
		p.Address = b.Venue.Address
		p.Lat = numberPtr(b.Venue.Lat)
		p.Long = numberPtr(b.Venue.Long)
	}
	return p
}

// formField returns the first value of key, accepting "venue[address]"
// style aliases for the venue parts.
func formField(v url.Values, keys ...string) (string, bool) {
	for _, k := range keys {
		if vals, ok := v[k]; ok && len(vals) > 0 {
			return vals[0], true
		}
	}
	return "", false
}

// formTags accepts repeated "tags" parts, "tags[]" parts, or one
// comma-separated value.
func formTags(v url.Values) ([]string, bool) {
	vals, ok := v["tags"]
	if !ok {
		vals, ok = v["tags[]"]
	}
	if !ok {
		return nil, false
	}
	tags := []string{}
	for _, val := range vals {
		tags = append(tags, strings.Split(val, ",")...)
	}
	return tags, true
}

func formBool(field, raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, apperror.ValidationFailed(field, field+" must be true or false")
	}
	return b, nil
}

func eventInputFromForm(v url.Values) (service.EventInput, error) {
	get := func(keys ...string) string {
		s, _ := formField(v, keys...)
		return s
	}

	online, err := formBool("isEventOnline", get("isEventOnline"))
	if err != nil {
		return service.EventInput{}, err
	}
	tags, _ := formTags(v)

	return service.EventInput{
		Title:           get("title"),
		Description:     get("description"),
		IsEventOnline:   online,
		Address:         get("address", "venue[address]", "venue.address"),
		Lat:             get("lat", "venue[lat]", "venue.lat"),
		Long:            get("long", "venue[long]", "venue.long"),
		StartTime:       get("startTime"),
		EndTime:         get("endTime"),
		StartDate:       get("startDate"),
		EndDate:         get("endDate"),
		RegistrationFee: get("registrationFee"),
		RefundPolicy:    get("refundPolicy"),
		Tags:            tags,
	}, nil
}

func eventPatchFromForm(v url.Values) (service.EventPatch, error) {
	ptr := func(keys ...string) *string {
		if s, ok := formField(v, keys...); ok {
			return &s
		}
		return nil
	}

	p := service.EventPatch{
		Title:           ptr("title"),
		Description:     ptr("description"),
		Address:         ptr("address", "venue[address]", "venue.address"),
		Lat:             ptr("lat", "venue[lat]", "venue.lat"),
		Long:            ptr("long", "venue[long]", "venue.long"),
		StartTime:       ptr("startTime"),
		EndTime:         ptr("endTime"),
		StartDate:       ptr("startDate"),
		EndDate:         ptr("endDate"),
		RegistrationFee: ptr("registrationFee"),
		RefundPolicy:    ptr("refundPolicy"),
	}
	if raw, ok := formField(v, "isEventOnline"); ok {
		online, err := formBool("isEventOnline", raw)
		if err != nil {
			return p, err
		}
		p.IsEventOnline = &online
	}
	if tags, ok := formTags(v); ok {
		p.Tags = tags
	}
	return p, nil
}
