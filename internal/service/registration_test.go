package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/eventhub/internal/apperror"
)

func TestRegisterForEvent_Success(t *testing.T) {
	f := newFixture(t)
	host := f.signUp(t, "host")
	alice := f.signUp(t, "alice")
	e := f.hostEvent(t, host, "Meetup")

	view, err := f.regs.Register(context.Background(), e.ID, alice)
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, e.ID, view.EventDetails.ID)
	assert.Equal(t, "Meetup", view.EventDetails.Title)
	assert.Equal(t, host.ID, view.Host.ID)
	assert.Equal(t, "host", view.Host.Username)
	assert.Equal(t, alice.ID, view.Attendee.ID)
	assert.False(t, view.CreatedAt.IsZero())
}

func TestRegisterForEvent_CheckOrder(t *testing.T) {
	f := newFixture(t)
	host := f.signUp(t, "host")
	alice := f.signUp(t, "alice")
	e := f.hostEvent(t, host, "Meetup")
	ctx := context.Background()

	_, err := f.regs.Register(ctx, "missing", alice)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "Invalid Event-ID | Event not found", err.Error())

	_, err = f.regs.Register(ctx, e.ID, host)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Contains(t, err.Error(), "Host need not register")

	_, err = f.regs.Register(ctx, e.ID, alice)
	require.NoError(t, err)

	_, err = f.regs.Register(ctx, e.ID, alice)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterForEvent_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	host := f.signUp(t, "host")
	alice := f.signUp(t, "alice")
	e := f.hostEvent(t, host, "Meetup")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.regs.Register(context.Background(), e.ID, alice)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	detail, err := f.events.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.AttendeeCount)
}

func TestDeregister(t *testing.T) {
	f := newFixture(t)
	host := f.signUp(t, "host")
	alice := f.signUp(t, "alice")
	e := f.hostEvent(t, host, "Meetup")
	ctx := context.Background()

	err := f.regs.Deregister(ctx, "missing", alice.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)

	err = f.regs.Deregister(ctx, e.ID, alice.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Contains(t, err.Error(), "You have not registered to this event")

	_, err = f.regs.Register(ctx, e.ID, alice)
	require.NoError(t, err)
	require.NoError(t, f.regs.Deregister(ctx, e.ID, alice.ID))

	// Registering again after leaving is allowed.
	_, err = f.regs.Register(ctx, e.ID, alice)
	require.NoError(t, err)
}
