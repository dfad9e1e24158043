package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/media"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
	"github.com/sakif/eventhub/internal/validation"
)

// memStore is an in-memory stand-in for both storage backends. One mutex
// guards all three tables so the fakes are safe under the concurrent
// registration test.
type memStore struct {
	mu     sync.Mutex
	nextID int
	clock  time.Time

	users  map[string]*model.User
	events map[string]*model.Event
	regs   map[string]*model.Registration // key: eventID + "/" + attendeeID
}

func newMemStore() *memStore {
	return &memStore{
		clock:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		users:  map[string]*model.User{},
		events: map[string]*model.Event{},
		regs:   map[string]*model.Registration{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

// tick returns a strictly increasing timestamp so ordering is deterministic.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

type memUsers struct{ *memStore }
type memEvents struct{ *memStore }
type memRegs struct{ *memStore }

var (
	_ repository.UserRepository         = memUsers{}
	_ repository.EventRepository        = memEvents{}
	_ repository.RegistrationRepository = memRegs{}
)

func (m memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return apperror.Conflict("A user with same username or email exists")
		}
	}
	u.ID = m.id("user")
	u.CreatedAt = m.tick()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (m memUsers) GetByLogin(_ context.Context, identifier string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == identifier || u.Email == identifier {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFoundMsg("User does not exist")
}

func (m memUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (m memUsers) UpdateAccountDetails(_ context.Context, id, email, fullname string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	for _, other := range m.users {
		if other.ID != id && other.Email == email {
			return nil, apperror.Conflict("A user with same email exists")
		}
	}
	u.Email, u.Fullname = email, fullname
	u.UpdatedAt = m.tick()
	out := *u
	return &out, nil
}

func (m memUsers) SetRefreshToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.RefreshToken = token
	return nil
}

func (m memEvents) Create(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.Title == e.Title {
			return apperror.Conflict("An event with the same title already exists")
		}
	}
	e.ID = m.id("event")
	e.CreatedAt = m.tick()
	e.UpdatedAt = e.CreatedAt
	stored := *e
	m.events[e.ID] = &stored
	return nil
}

func (m memEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, apperror.NotFound("event", id)
	}
	out := *e
	return &out, nil
}

func (m memEvents) GetDetail(_ context.Context, id string) (*model.EventDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, apperror.NotFound("event", id)
	}
	detail := &model.EventDetail{Event: *e}
	if h, ok := m.users[e.HostID]; ok {
		detail.Host = h.Summary()
	}
	for _, r := range m.regs {
		if r.EventID == id {
			detail.AttendeeCount++
		}
	}
	return detail, nil
}

func (m memEvents) ListSummaries(_ context.Context, opts repository.ListOptions) ([]model.EventSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*model.Event, 0, len(m.events))
	for _, e := range m.events {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := []model.EventSummary{}
	for i := opts.Offset; i < len(all) && len(out) < opts.Limit; i++ {
		out = append(out, all[i].Summary())
	}
	return out, nil
}

func (m memEvents) TitleExists(_ context.Context, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (m memEvents) Update(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.events[e.ID]
	if !ok {
		return apperror.NotFound("event", e.ID)
	}
	stored := *e
	stored.HostID = old.HostID
	stored.CreatedAt = old.CreatedAt
	stored.UpdatedAt = m.tick()
	e.UpdatedAt = stored.UpdatedAt
	m.events[e.ID] = &stored
	return nil
}

func (m memEvents) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return apperror.NotFound("event", id)
	}
	for k, r := range m.regs {
		if r.EventID == id {
			delete(m.regs, k)
		}
	}
	delete(m.events, id)
	return nil
}

func (m memEvents) ListIDsByHost(_ context.Context, hostID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, e := range m.events {
		if e.HostID == hostID {
			ids = append(ids, e.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func regKey(eventID, attendeeID string) string { return eventID + "/" + attendeeID }

func (m memRegs) Create(_ context.Context, r *model.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.HostID == r.AttendeeID {
		return apperror.Conflict("Registration Failed | Host need not register for their own events")
	}
	key := regKey(r.EventID, r.AttendeeID)
	if _, dup := m.regs[key]; dup {
		return apperror.Conflict("Registration Failed | User has already registered for this event")
	}
	r.ID = m.id("reg")
	r.CreatedAt = m.tick()
	stored := *r
	m.regs[key] = &stored
	return nil
}

func (m memRegs) Get(_ context.Context, eventID, attendeeID string) (*model.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[regKey(eventID, attendeeID)]
	if !ok {
		return nil, apperror.NotFoundMsg("You have not registered to this event")
	}
	out := *r
	return &out, nil
}

func (m memRegs) Delete(_ context.Context, eventID, attendeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := regKey(eventID, attendeeID)
	if _, ok := m.regs[key]; !ok {
		return apperror.NotFoundMsg("You have not registered to this event")
	}
	delete(m.regs, key)
	return nil
}

func (m memRegs) ListEventIDsByAttendee(_ context.Context, attendeeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := []*model.Registration{}
	for _, r := range m.regs {
		if r.AttendeeID == attendeeID {
			regs = append(regs, r)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].CreatedAt.After(regs[j].CreatedAt) })
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.EventID)
	}
	return ids, nil
}

// memImages records saves and deletes without touching disk.
type memImages struct {
	mu      sync.Mutex
	n       int
	saved   []string
	deleted []string
	saveErr error
}

var _ media.Store = (*memImages)(nil)

func (m *memImages) Save(_ context.Context, up *media.Upload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	if _, err := io.Copy(io.Discard, up.Body); err != nil {
		return "", err
	}
	m.n++
	url := fmt.Sprintf("/uploads/img-%d.png", m.n)
	m.saved = append(m.saved, url)
	return url, nil
}

func (m *memImages) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return nil
}

// fixture bundles the three services over one memStore.
type fixture struct {
	store  *memStore
	images *memImages
	tokens *auth.TokenService

	users  *UserService
	events *EventService
	regs   *RegistrationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokens, err := auth.NewTokenService(
		"access-secret-for-tests-0123456789",
		"refresh-secret-for-tests-0123456789",
		15*time.Minute, 24*time.Hour,
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := newMemStore()
	images := &memImages{}
	v := validation.New()

	users, events, regs := memUsers{store}, memEvents{store}, memRegs{store}
	return &fixture{
		store:  store,
		images: images,
		tokens: tokens,
		users:  NewUserService(users, events, regs, tokens, auth.NewPasswordService(4), v, logger),
		events: NewEventService(events, images, v, logger),
		regs:   NewRegistrationService(users, events, regs, logger),
	}
}

// signUp registers a user with password "password123" and returns it.
func (f *fixture) signUp(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Fullname: strings.ToUpper(username[:1]) + username[1:],
	})
	require.NoError(t, err)
	return u
}

func validEventInput(title string) EventInput {
	return EventInput{
		Title:           title,
		Description:     "An evening of talks",
		IsEventOnline:   false,
		Address:         "12 Main St",
		Lat:             "23.81",
		Long:            "90.41",
		StartTime:       "18:00",
		EndTime:         "21:00",
		StartDate:       "2026-03-01",
		EndDate:         "2026-03-01",
		RegistrationFee: "10",
		Tags:            []string{"Go", " meetup ", "go"},
	}
}

func pngUpload() *media.Upload {
	return &media.Upload{Filename: "thumb.png", Size: 4, Body: strings.NewReader("\x89PNG")}
}

// hostEvent creates an event owned by host.
func (f *fixture) hostEvent(t *testing.T, host *model.User, title string) *model.Event {
	t.Helper()
	e, err := f.events.Create(context.Background(), host, validEventInput(title), pngUpload())
	require.NoError(t, err)
	return e
}
