package handler

import (
	"net/http"
	"time"

	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/service"
)

// CookieOptions controls the session cookies set on login and refresh.
// Secure is off only for local development over plain HTTP.
type CookieOptions struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// UserHandler serves the /users routes.
type UserHandler struct {
	users   *service.UserService
	cookies CookieOptions
}

func NewUserHandler(users *service.UserService, cookies CookieOptions) *UserHandler {
	return &UserHandler{users: users, cookies: cookies}
}

func (h *UserHandler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if value == "" {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *UserHandler) setSession(w http.ResponseWriter, s *service.Session) {
	h.setCookie(w, auth.AccessCookie, s.AccessToken, h.cookies.AccessTTL)
	h.setCookie(w, auth.RefreshCookie, s.RefreshToken, h.cookies.RefreshTTL)
}

// HandleRegister creates an account.
//
// HTTP: POST /users/register
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}

	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "User registration successful", user)
	return nil
}

// HandleLogin checks credentials and sets both session cookies. The tokens
// are echoed in the body for clients that cannot use cookies.
//
// HTTP: POST /users/login
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}

	session, err := h.users.Login(r.Context(), in)
	if err != nil {
		return err
	}
	h.setSession(w, session)
	respond(w, http.StatusOK, "User logged in successfully", session)
	return nil
}

// HandleRefreshToken rotates the session. The refresh token comes from its
// cookie, or from {"refreshToken": "..."} in the body.
//
// HTTP: POST /users/refresh-token
func (h *UserHandler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) error {
	var token string
	if c, err := r.Cookie(auth.RefreshCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			return err
		}
		token = body.RefreshToken
	}

	session, err := h.users.RefreshSession(r.Context(), token)
	if err != nil {
		return err
	}
	h.setSession(w, session)
	respond(w, http.StatusOK, "Access token refreshed", session)
	return nil
}

// HandleLogout drops the stored refresh token and expires both cookies.
//
// HTTP: POST /users/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	if err := h.users.Logout(r.Context(), user.ID); err != nil {
		return err
	}

	h.setCookie(w, auth.AccessCookie, "", 0)
	h.setCookie(w, auth.RefreshCookie, "", 0)
	respond(w, http.StatusOK, "User logged out", nil)
	return nil
}

// HandleCurrentUser returns the caller's profile.
//
// HTTP: GET /users/current-user
func (h *UserHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}

	profile, err := h.users.CurrentUser(r.Context(), user)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "Current user fetched successfully", profile)
	return nil
}

// HTTP: PUT /users/change-password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}

	var in service.ChangePasswordInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	if err := h.users.ChangePassword(r.Context(), user.ID, in); err != nil {
		return err
	}
	respond(w, http.StatusOK, "Password changed successfully", nil)
	return nil
}

// HTTP: PUT /users/change-other-account-details
func (h *UserHandler) HandleUpdateAccountDetails(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}

	var in service.AccountDetailsInput
	if err := decodeJSON(w, r, &in); err != nil {
		return err
	}
	updated, err := h.users.UpdateAccountDetails(r.Context(), user, in)
	if err != nil {
		return err
	}
	respond(w, http.StatusOK, "Account details updated successfully", updated)
	return nil
}
