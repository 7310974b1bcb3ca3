package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/domain"
)

// SingleActiveSession is the login revocation policy: every session that is
// still valid when a new one is created gets revoked, so at most one valid
// session per user exists at any time.
func SingleActiveSession(existing []domain.Session) []string {
	ids := make([]string, 0, len(existing))
	for _, s := range existing {
		ids = append(ids, s.ID)
	}
	return ids
}

func (a *App) createSession(user domain.User, client util.ClientInfo, method string) (string, error) {
	now := a.now()
	expiresAt := now.Add(a.sessionTTL)
	id := util.NewID()
	token, err := a.signToken(user.ID, id, now, expiresAt)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	session := domain.Session{
		ID:           id,
		UserID:       user.ID,
		Token:        token,
		DeviceType:   client.DeviceType,
		Browser:      client.Browser,
		OS:           client.OS,
		UserAgent:    client.UserAgent,
		IPAddress:    client.IPAddress,
		LoginMethod:  method,
		Metadata:     client.Metadata,
		IsActive:     true,
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}
	if err := a.store.CreateSession(session, SingleActiveSession); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

func (a *App) signToken(userID, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"sid": sessionID,
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// ValidateToken authenticates a bearer token. The session row is the source
// of truth; the JWT signature just rejects forged tokens before the lookup.
// A valid hit bumps last_activity best-effort.
func (a *App) ValidateToken(token string) (domain.User, domain.Session, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.User{}, domain.Session{}, ErrSessionInvalid
	}

	session, ok, err := a.store.GetSessionByToken(token)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("lookup session: %w", err)
	}
	now := a.now()
	if !ok || !session.IsValid(now) {
		return domain.User{}, domain.Session{}, ErrSessionInvalid
	}
	user, ok, err := a.store.GetUserByID(session.UserID)
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, domain.Session{}, ErrSessionInvalid
	}
	if err := a.store.TouchSession(session.ID, now); err != nil {
		slog.Warn("sessions.touch", "session", session.ID, "error", err)
	}
	return user, session, nil
}

// ListSessions returns all session rows for the user, newest first,
// including revoked and expired ones.
func (a *App) ListSessions(userID string) ([]domain.Session, error) {
	return a.store.ListSessionsByUser(userID)
}

// RevokeSession revokes one of the user's sessions. Revoking an
// already-revoked session is a no-op.
func (a *App) RevokeSession(userID, sessionID string) error {
	sessions, err := a.store.ListSessionsByUser(userID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			return a.store.RevokeSession(sessionID, a.now())
		}
	}
	return ErrSessionNotFound
}

// RevokeAllSessions revokes every active session for the user except the
// one identified by exceptID (pass "" to revoke all).
func (a *App) RevokeAllSessions(userID, exceptID string) (int, error) {
	return a.store.RevokeUserSessions(userID, exceptID, a.now())
}

// SweepExpiredSessions marks expired sessions inactive and reports how many
// rows changed.
func (a *App) SweepExpiredSessions() (int, error) {
	return a.store.SweepExpiredSessions(a.now())
}

// RunSessionSweeper runs the expiry sweep on a ticker until ctx is done.
func (a *App) RunSessionSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.SweepExpiredSessions()
			if err != nil {
				slog.Error("sessions.sweep", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("sessions.sweep", "expired", n)
			}
		}
	}
}
