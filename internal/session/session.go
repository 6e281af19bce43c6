// Package session holds the small per-client state the auth core reads and
// writes on every request: the identity token and a login-status flag. The
// storage mechanism is abstracted behind Store; the default implementation
// keeps the state in HTTP cookies.
package session

import (
	"net/http"
)

// Cookie names used by the cookie-backed store.
const (
	tokenCookie = "quill_token"
	loginCookie = "quill_login"
	adminCookie = "quill_admin"
)

// State is the per-client session state.
type State struct {
	// Token is the signed identity token, empty when absent.
	Token string

	// LoggedIn mirrors the token's login-status claim. Protected routes
	// check both independently; either disagreeing denies the request.
	LoggedIn bool

	// Admin marks an elevated session, set only after an admin login.
	Admin bool
}

// Store reads and writes session state for a client.
type Store interface {
	// Get returns the client's session state. Absent state yields a zero
	// State, never an error.
	Get(r *http.Request) *State

	// Save writes the session state to the response.
	Save(w http.ResponseWriter, r *http.Request, s *State)

	// Clear removes all session state from the response.
	Clear(w http.ResponseWriter, r *http.Request)
}

// CookieStore implements Store using HttpOnly cookies.
type CookieStore struct {
	// MaxAge is the cookie lifetime in seconds. The token carries its own
	// expiry, so this is a ceiling, not the source of truth.
	MaxAge int
}

// NewCookieStore creates a cookie-backed session store.
func NewCookieStore(maxAge int) *CookieStore {
	return &CookieStore{MaxAge: maxAge}
}

// Get returns the session state from request cookies.
func (cs *CookieStore) Get(r *http.Request) *State {
	s := &State{}
	if c, err := r.Cookie(tokenCookie); err == nil {
		s.Token = c.Value
	}
	if c, err := r.Cookie(loginCookie); err == nil {
		s.LoggedIn = c.Value == "true"
	}
	if c, err := r.Cookie(adminCookie); err == nil {
		s.Admin = c.Value == "true"
	}
	return s
}

// Save writes the session state as cookies.
func (cs *CookieStore) Save(w http.ResponseWriter, r *http.Request, s *State) {
	cs.set(w, r, tokenCookie, s.Token, cs.MaxAge)
	cs.set(w, r, loginCookie, boolValue(s.LoggedIn), cs.MaxAge)
	if s.Admin {
		cs.set(w, r, adminCookie, "true", cs.MaxAge)
	} else {
		cs.set(w, r, adminCookie, "", -1)
	}
}

// Clear expires all session cookies.
func (cs *CookieStore) Clear(w http.ResponseWriter, r *http.Request) {
	cs.set(w, r, tokenCookie, "", -1)
	cs.set(w, r, loginCookie, "", -1)
	cs.set(w, r, adminCookie, "", -1)
}

func (cs *CookieStore) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Ensure CookieStore implements Store.
var _ Store = (*CookieStore)(nil)
