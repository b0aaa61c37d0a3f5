// Package service contains the two stores that hold all application state:
//
//	IdentityStore → user registry + the current session
//	TaskStore     → one user's tasks, categories and activity history
//
// THE LAYERING:
//
//	handler (HTTP)  →  service (rules, state)  →  repository (durable KV)
//
// Both stores keep the authoritative state in memory and write through to a
// repository.KeyValueStore on every mutation: the full value of the affected
// key is rewritten before the method returns. State is read from the store
// once, when a store is created (IdentityStore) or switched to a user
// (TaskStore).
//
// Neither store knows about HTTP. They return apperror values; the handler
// layer maps those to status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/auth"
	"github.com/sakif/task-master/internal/model"
	"github.com/sakif/task-master/internal/repository"
)

// errInvalidCredentials is the single failure returned by Login, whether the
// email is unknown or the password is wrong.
var errInvalidCredentials = apperror.Unauthorized("invalid email or password")

// IdentityStore owns the registry of users and the current session.
//
// It owns no task data. Switching the active task partition on login or
// logout is the caller's job (see handler.AuthHandler), which keeps this
// store usable without a TaskStore.
type IdentityStore struct {
	mu      sync.Mutex
	kv      repository.KeyValueStore
	hasher  auth.CredentialHasher
	logger  *slog.Logger
	users   []model.User
	current *model.Session
}

// NewIdentityStore loads "users_db" and "current_user" from kv.
// Absent keys mean an empty registry and no session.
func NewIdentityStore(
	ctx context.Context,
	kv repository.KeyValueStore,
	hasher auth.CredentialHasher,
	logger *slog.Logger,
) (*IdentityStore, error) {
	users, err := repository.Read[[]model.User](ctx, kv, repository.UsersKey, nil)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading users: %w", err)
	}
	current, err := repository.Read[*model.Session](ctx, kv, repository.SessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("service/identity: loading session: %w", err)
	}

	return &IdentityStore{
		kv:      kv,
		hasher:  hasher,
		logger:  logger,
		users:   users,
		current: current,
	}, nil
}

// Register creates a user and makes it the current session.
//
// Failure modes (nothing is persisted on failure):
//   - empty name, email or password → apperror.ErrValidation
//   - an existing user has exactly this email → apperror.ErrConflict
//   - an existing user has the same derived ID (e.g. the email differs
//     only by case) → apperror.ErrConflict, since both would otherwise
//     share one storage partition
//
// Email comparison is exact and case-sensitive. Password complexity is NOT
// checked here; see auth.PasswordPolicy.
func (s *IdentityStore) Register(ctx context.Context, name, email, password string) (model.Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	switch {
	case name == "":
		return model.Session{}, apperror.ValidationFailed("name", "name is required")
	case email == "":
		return model.Session{}, apperror.ValidationFailed("email", "email is required")
	case password == "":
		return model.Session{}, apperror.ValidationFailed("password", "password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.DeriveUserID(email)
	for _, u := range s.users {
		if u.Email == email {
			return model.Session{}, apperror.Conflict("user", email)
		}
		if u.ID == id {
			s.logger.Warn("registration rejected: derived user ID already taken",
				slog.String("userID", id),
			)
			return model.Session{}, apperror.Conflict("user", email)
		}
	}

	credential, err := s.hasher.Hash(password)
	if err != nil {
		return model.Session{}, apperror.ValidationFailed("password", err.Error())
	}

	user := model.User{ID: id, Name: name, Email: email, Password: credential}

	users := make([]model.User, 0, len(s.users)+1)
	users = append(users, s.users...)
	users = append(users, user)
	if err := repository.Write(ctx, s.kv, repository.UsersKey, users); err != nil {
		s.logger.Error("failed to persist user registry", slog.String("error", err.Error()))
		return model.Session{}, fmt.Errorf("service/identity: registering %s: %w", email, err)
	}
	s.users = users

	session := user.Session()
	if err := s.setSession(ctx, &session); err != nil {
		return model.Session{}, err
	}

	s.logger.Info("user registered", slog.String("userID", id))
	return session, nil
}

// Login makes the user with this exact email and password the current
// session. Any mismatch returns the same apperror.ErrUnauthorized.
func (s *IdentityStore) Login(ctx context.Context, email, password string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.findByEmail(email)
	if !ok {
		return model.Session{}, errInvalidCredentials
	}
	if err := s.hasher.Verify(user.Password, password); err != nil {
		s.logger.Debug("login rejected", slog.String("userID", user.ID))
		return model.Session{}, errInvalidCredentials
	}

	session := user.Session()
	if err := s.setSession(ctx, &session); err != nil {
		return model.Session{}, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return session, nil
}

// Logout clears the current session. Calling it with no session is fine.
func (s *IdentityStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setSession(ctx, nil); err != nil {
		return err
	}
	s.logger.Info("session cleared")
	return nil
}

// FindUserByEmail returns the registered user with this exact email,
// including the stored credential.
//
// SECURITY NOTE:
// This exists for the "remembered account" convenience on the login form.
// Anything that exposes its result to a client turns the endpoint into an
// account-enumeration oracle; the HTTP layer only reveals existence and
// display name, never the credential.
func (s *IdentityStore) FindUserByEmail(email string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findByEmail(email)
}

// Current returns the current session, if any.
func (s *IdentityStore) Current() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return model.Session{}, false
	}
	return *s.current, true
}

// IsCurrent reports whether userID is the current session's user.
// It satisfies auth.SessionChecker.
func (s *IdentityStore) IsCurrent(userID string) bool {
	cur, ok := s.Current()
	return ok && userID != "" && cur.ID == userID
}

func (s *IdentityStore) findByEmail(email string) (model.User, bool) {
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return model.User{}, false
}

// setSession persists and then adopts the session. nil means logged out,
// which is stored as an absent "current_user" key. Caller holds s.mu.
func (s *IdentityStore) setSession(ctx context.Context, session *model.Session) error {
	var err error
	if session == nil {
		err = s.kv.Delete(ctx, repository.SessionKey)
	} else {
		err = repository.Write(ctx, s.kv, repository.SessionKey, session)
	}
	if err != nil {
		s.logger.Error("failed to persist session", slog.String("error", err.Error()))
		return fmt.Errorf("service/identity: saving session: %w", err)
	}

	s.current = session
	return nil
}
