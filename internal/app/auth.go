package app

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"virtuallibrary/internal/store"
	"virtuallibrary/internal/util"
	"virtuallibrary/pkg/auth"
	"virtuallibrary/pkg/domain"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// blacklistFragments are rejected anywhere in signup name/email input.
var blacklistFragments = []string{
	"<script", "</script", "javascript:",
	"drop table", "delete from", "insert into", "--",
}

func containsBlacklisted(s string) bool {
	lower := strings.ToLower(s)
	for _, frag := range blacklistFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// SignUp registers a new customer account.
func (a *App) SignUp(name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" {
		return domain.User{}, validationf("name required")
	}
	if !emailPattern.MatchString(email) {
		return domain.User{}, validationf("invalid email format")
	}
	if len(password) < 8 {
		return domain.User{}, validationf("password must be at least 8 characters")
	}
	if containsBlacklisted(name) || containsBlacklisted(email) {
		return domain.User{}, validationf("input contains forbidden characters")
	}

	if _, exists, err := a.store.GetUserByEmail(email); err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	} else if exists {
		return domain.User{}, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleCustomer,
		CreatedAt:    a.now(),
	}
	if err := a.store.SaveUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login authenticates by email/password and opens a new session, revoking
// any other active session for the user.
func (a *App) Login(email, password string, client util.ClientInfo) (domain.User, string, error) {
	return a.login(email, password, client, "password")
}

// LoginEncrypted authenticates with an RSA/AES credential envelope produced
// against the server's published public key.
func (a *App) LoginEncrypted(encryptedData, encryptedKey, iv string, client util.ClientInfo) (domain.User, string, error) {
	if a.keys == nil {
		return domain.User{}, "", validationf("encrypted login not available")
	}
	creds, err := a.keys.DecryptCredentials(encryptedData, encryptedKey, iv)
	if err != nil {
		return domain.User{}, "", validationf("could not decrypt credentials")
	}
	return a.login(creds.Username, creds.Password, client, "encrypted")
}

func (a *App) login(email, password string, client util.ClientInfo, method string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.createSession(user, client, method)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// PublicKeyPEM returns the RSA public key clients use for encrypted login.
func (a *App) PublicKeyPEM() (string, error) {
	if a.keys == nil {
		return "", validationf("encrypted login not available")
	}
	return a.keys.PublicKeyPEM(), nil
}

// GetUser looks up a user by id.
func (a *App) GetUser(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}
