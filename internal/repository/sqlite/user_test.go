package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
)

// newTestDB opens a fresh in-memory database with every migration applied.
// The single pooled connection keeps the in-memory database alive for the
// whole test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		Fullname:     "Test " + username,
		PasswordHash: "$2a$04$fakehashfakehashfakehash",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func createTestEvent(t *testing.T, db *DB, host *model.User, title string) *model.Event {
	t.Helper()
	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	event := &model.Event{
		Title:         title,
		Description:   "about " + title,
		IsEventOnline: false,
		Venue:         &model.Venue{Address: "1 Main St", Lat: 23.8, Long: 90.4},
		StartTime:     "10:00",
		EndTime:       "12:00",
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, 1),
		Thumbnail:     "/uploads/" + title + ".png",
		HostID:        host.ID,
		RefundPolicy:  model.DefaultRefundPolicy,
		Tags:          []string{"go", "meetup"},
	}
	if err := db.Events().Create(context.Background(), event); err != nil {
		t.Fatalf("failed to create test event: %v", err)
	}
	return event
}

// =========================================================================
// SCHEMA
// =========================================================================

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	path := t.TempDir() + "/eventhub.db"

	first, err := New(path)
	if err != nil {
		t.Fatalf("New() first open: %v", err)
	}
	createTestUser(t, first, "persisted")
	first.Close()

	// Reopening runs migrate.Up again, which must be a no-op.
	second, err := New(path)
	if err != nil {
		t.Fatalf("New() second open: %v", err)
	}
	defer second.Close()

	if _, err := second.Users().GetByLogin(context.Background(), "persisted"); err != nil {
		t.Fatalf("user lost across reopen: %v", err)
	}
}

// =========================================================================
// CREATE
// =========================================================================

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "alice")

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
}

func TestUserCreate_DuplicateIsConflict(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	cases := []struct {
		name string
		user *model.User
	}{
		{"same username", &model.User{Username: "alice", Email: "other@example.com", Fullname: "x", PasswordHash: "h"}},
		{"same email", &model.User{Username: "other", Email: "alice@example.com", Fullname: "x", PasswordHash: "h"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := db.Users().Create(context.Background(), tc.user)
			if !errors.Is(err, apperror.ErrConflict) {
				t.Fatalf("Create() error = %v, want ErrConflict", err)
			}
		})
	}
}

// =========================================================================
// LOOKUPS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "getbyid_user")

	found, err := db.Users().GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Username != "getbyid_user" {
		t.Errorf("Username = %q, want %q", found.Username, "getbyid_user")
	}
	if found.PasswordHash != created.PasswordHash {
		t.Error("GetByID() should load the password hash for verification")
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().GetByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestUserGetByLogin(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "bob")

	for _, ident := range []string{"bob", "bob@example.com"} {
		found, err := db.Users().GetByLogin(context.Background(), ident)
		if err != nil {
			t.Fatalf("GetByLogin(%q) error = %v", ident, err)
		}
		if found.ID != created.ID {
			t.Errorf("GetByLogin(%q) ID = %q, want %q", ident, found.ID, created.ID)
		}
	}

	if _, err := db.Users().GetByLogin(context.Background(), "nobody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByLogin(nobody) error = %v, want ErrNotFound", err)
	}
}

func TestUserExistsByUsernameOrEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "carol")

	tests := []struct {
		username, email string
		want            bool
	}{
		{"carol", "new@example.com", true},
		{"new", "carol@example.com", true},
		{"new", "new@example.com", false},
	}
	for _, tt := range tests {
		got, err := db.Users().ExistsByUsernameOrEmail(context.Background(), tt.username, tt.email)
		if err != nil {
			t.Fatalf("ExistsByUsernameOrEmail() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("ExistsByUsernameOrEmail(%q, %q) = %v, want %v", tt.username, tt.email, got, tt.want)
		}
	}
}

// =========================================================================
// UPDATES
// =========================================================================

func TestUserSetRefreshToken(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "dave")
	ctx := context.Background()

	if err := db.Users().SetRefreshToken(ctx, user.ID, "token-1"); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}
	if err := db.Users().SetRefreshToken(ctx, user.ID, "token-2"); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	found, _ := db.Users().GetByID(ctx, user.ID)
	if found.RefreshToken != "token-2" {
		t.Errorf("RefreshToken = %q, want the latest value", found.RefreshToken)
	}

	if err := db.Users().SetRefreshToken(ctx, user.ID, ""); err != nil {
		t.Fatalf("SetRefreshToken(clear) error = %v", err)
	}
	found, _ = db.Users().GetByID(ctx, user.ID)
	if found.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want cleared", found.RefreshToken)
	}

	if err := db.Users().SetRefreshToken(ctx, "missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetRefreshToken(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUserUpdatePassword(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "erin")

	if err := db.Users().UpdatePassword(context.Background(), user.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	found, _ := db.Users().GetByID(context.Background(), user.ID)
	if found.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", found.PasswordHash, "new-hash")
	}
}

func TestUserUpdateAccountDetails(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "frank")
	createTestUser(t, db, "grace")
	ctx := context.Background()

	updated, err := db.Users().UpdateAccountDetails(ctx, user.ID, "frank2@example.com", "Frank Two")
	if err != nil {
		t.Fatalf("UpdateAccountDetails() error = %v", err)
	}
	if updated.Email != "frank2@example.com" || updated.Fullname != "Frank Two" {
		t.Errorf("UpdateAccountDetails() = %+v", updated)
	}

	_, err = db.Users().UpdateAccountDetails(ctx, user.ID, "grace@example.com", "Frank")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("UpdateAccountDetails(taken email) error = %v, want ErrConflict", err)
	}
}

func TestUserCreate_ManyUsers(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 10; i++ {
		createTestUser(t, db, fmt.Sprintf("user%02d", i))
	}

	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatalf("counting users: %v", err)
	}
	if n != 10 {
		t.Errorf("users = %d, want 10", n)
	}
}
