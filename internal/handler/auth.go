package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/auth"
	"github.com/sakif/task-master/internal/model"
	"github.com/sakif/task-master/internal/service"
)

// AuthHandler serves registration, login, logout and the current-user view.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create the account, start a session, issue a token
//   - HandleLogin    → check credentials, start a session, issue a token
//   - HandleLogout   → end the session and clear the cookie
//   - HandleLookup   → "is there an account for this email?" for the login form
//   - HandleMe       → the logged-in user's profile
//
// SESSION AND PARTITION MOVE TOGETHER:
// The Identity Store only knows who is logged in. The Task Store has to be
// pointed at that user's partition as well, and that coupling lives here:
// every session change is followed by tasks.SwitchUser or tasks.Detach.
// mu makes each pair one step, so concurrent logins can't leave the session
// on one user and the partition on another.
type AuthHandler struct {
	mu       sync.Mutex
	identity *service.IdentityStore
	tasks    *service.TaskStore
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	identity *service.IdentityStore,
	tasks *service.TaskStore,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		tasks:    tasks,
		tokens:   tokens,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is returned by register and login. The token is also set as
// an HttpOnly cookie; API clients can use either.
type authResponse struct {
	User  model.Session `json:"user"`
	Token string        `json:"token"`
}

type lookupResponse struct {
	Exists bool   `json:"exists"`
	Name   string `json:"name,omitempty"`
}

// HandleRegister creates an account and logs it in.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"name": "Ann", "email": "ann@example.com", "password": "Secret#1"}
//
// The password policy is a presentation rule and is checked here, before
// the store sees the request.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Password != "" && !auth.PasswordPolicy(req.Password) {
		writeError(w, apperror.ValidationFailed("password", auth.PasswordPolicyMessage))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	session, err := h.identity.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.startSession(w, r, http.StatusCreated, session)
}

// HandleLogin starts a session for an existing account.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email": "ann@example.com", "password": "Secret#1"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	session, err := h.identity.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.startSession(w, r, http.StatusOK, session)
}

// startSession switches the Task Store to the new session's partition,
// issues a token and writes the response. If the partition can't be
// loaded, the session is rolled back so the two stores never disagree.
// Caller holds h.mu.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, session model.Session) {
	if err := h.tasks.SwitchUser(r.Context(), session.ID); err != nil {
		h.logger.Error("failed to load task partition",
			slog.String("userID", session.ID),
			slog.String("error", err.Error()),
		)
		h.endSession(r)
		writeError(w, err)
		return
	}

	token, err := h.tokens.Generate(session.ID)
	if err != nil {
		h.logger.Error("token generation failed", slog.String("error", err.Error()))
		h.endSession(r)
		writeError(w, err)
		return
	}

	// HttpOnly = JavaScript can't read it. SameSite=Lax = not sent on
	// cross-site POSTs. Secure is left off for local development over HTTP.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, status, authResponse{User: session, Token: token})
}

func (h *AuthHandler) endSession(r *http.Request) {
	if err := h.identity.Logout(r.Context()); err != nil {
		h.logger.Error("failed to clear session", slog.String("error", err.Error()))
	}
	h.tasks.Detach()
}

// HandleLogout ends the current session.
//
// HTTP: POST /auth/logout
//
// Logging out is allowed without a valid token: it only ever removes
// state. Tokens issued earlier stop working because RequireAuth also checks
// that the token's user is the current session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.identity.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.tasks.Detach()

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleLookup reports whether an account exists for an email and, if so,
// its display name.
//
// HTTP: GET /auth/lookup?email=ann@example.com
//
// SECURITY NOTE:
// This is still an account-enumeration endpoint. It never returns the
// stored credential or the user ID.
func (h *AuthHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, apperror.ValidationFailed("email", "email is required"))
		return
	}

	user, ok := h.identity.FindUserByEmail(email)
	if !ok {
		writeJSON(w, http.StatusOK, lookupResponse{Exists: false})
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{Exists: true, Name: user.Name})
}

// HandleMe returns the current session.
//
// HTTP: GET /api/me
// Auth: required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := h.identity.Current()
	if !ok {
		writeError(w, apperror.Unauthorized("not logged in"))
		return
	}
	writeJSON(w, http.StatusOK, session)
}
