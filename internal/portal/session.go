package portal

import (
	"context"
	"errors"
	"time"

	"cyberbook/internal/docstore"
	"cyberbook/internal/domain"
)

// sessionKey is the key of the single session record.
const sessionKey = "current"

// SessionAuth authenticates against the session table. A session is valid
// until its expiresAt timestamp.
type SessionAuth struct {
	store *docstore.Store
	now   func() time.Time
}

func NewSessionAuth(store *docstore.Store) *SessionAuth {
	return &SessionAuth{store: store, now: time.Now}
}

// Authenticated implements router.Authenticator.
func (a *SessionAuth) Authenticated(ctx context.Context) (bool, error) {
	rec, err := a.store.Get(ctx, docstore.TableSession, sessionKey)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expires, ok := rec.Time("expiresAt")
	if !ok {
		return false, nil
	}
	return a.now().Before(expires), nil
}

// Login stores a session for user valid for ttl.
func (a *SessionAuth) Login(ctx context.Context, user string, ttl time.Duration) error {
	_, err := a.store.Update(ctx, docstore.TableSession, domain.Record{
		"key":       sessionKey,
		"user":      user,
		"expiresAt": a.now().Add(ttl).UTC().Format(domain.TimeLayout),
	})
	return err
}

// Logout removes the session.
func (a *SessionAuth) Logout(ctx context.Context) error {
	return a.store.Delete(ctx, docstore.TableSession, sessionKey)
}

// User returns the logged in user, or "" without a valid session.
func (a *SessionAuth) User(ctx context.Context) (string, error) {
	ok, err := a.Authenticated(ctx)
	if err != nil || !ok {
		return "", err
	}
	rec, err := a.store.Get(ctx, docstore.TableSession, sessionKey)
	if err != nil {
		return "", err
	}
	user, _ := rec["user"].(string)
	return user, nil
}
