package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/repository"
)

func TestListOptions(t *testing.T) {
	tests := []struct {
		query   string
		want    repository.ListOptions
		wantErr string
	}{
		{"", repository.ListOptions{Limit: repository.DefaultListLimit}, ""},
		{"limit=5&offset=10", repository.ListOptions{Limit: 5, Offset: 10}, ""},
		{"limit=1000", repository.ListOptions{Limit: repository.MaxListLimit}, ""},
		{"offset=-3", repository.ListOptions{Limit: repository.DefaultListLimit}, ""},
		{"limit=ten", repository.ListOptions{}, "limit"},
		{"offset=x", repository.ListOptions{}, "offset"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/events?"+tt.query, nil)
			got, err := listOptions(r)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, apperror.ErrValidation)
				assert.Equal(t, tt.wantErr, apperror.FieldOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var body eventPatchBody
	r := httptest.NewRequest(http.MethodPatch, "/",
		strings.NewReader(`{"title":"New","registrationFee":"12.5","venue":{"lat":23.8,"long":"90.4"},"tags":[]}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), r, &body))

	p := body.toPatch()
	require.NotNil(t, p.Title)
	assert.Equal(t, "New", *p.Title)
	require.NotNil(t, p.RegistrationFee)
	assert.Equal(t, "12.5", *p.RegistrationFee)
	require.NotNil(t, p.Lat)
	assert.Equal(t, "23.8", *p.Lat)
	assert.Equal(t, "90.4", *p.Long)
	assert.Nil(t, p.Address)
	assert.Nil(t, p.Description)
	assert.NotNil(t, p.Tags, "an explicit empty list clears tags")

	r = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"title":`))
	err := decodeJSON(httptest.NewRecorder(), r, &body)
	require.ErrorIs(t, err, apperror.ErrValidation)

	r = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(""))
	assert.NoError(t, decodeJSON(httptest.NewRecorder(), r, &body))
}

func TestEventInputFromForm(t *testing.T) {
	v := url.Values{
		"title":          {"Meetup"},
		"isEventOnline":  {"false"},
		"venue[address]": {"12 Main St"},
		"lat":            {"23.8"},
		"long":           {"90.4"},
		"tags":           {"go,meetup", "dhaka"},
	}
	in, err := eventInputFromForm(v)
	require.NoError(t, err)
	assert.Equal(t, "Meetup", in.Title)
	assert.False(t, in.IsEventOnline)
	assert.Equal(t, "12 Main St", in.Address)
	assert.Equal(t, []string{"go", "meetup", "dhaka"}, in.Tags)

	_, err = eventInputFromForm(url.Values{"isEventOnline": {"maybe"}})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "isEventOnline", apperror.FieldOf(err))
}

func TestEventPatchFromForm(t *testing.T) {
	p, err := eventPatchFromForm(url.Values{
		"description":   {"Updated"},
		"isEventOnline": {"true"},
	})
	require.NoError(t, err)
	require.NotNil(t, p.Description)
	assert.Equal(t, "Updated", *p.Description)
	require.NotNil(t, p.IsEventOnline)
	assert.True(t, *p.IsEventOnline)
	assert.Nil(t, p.Title)
	assert.Nil(t, p.Tags)
}
