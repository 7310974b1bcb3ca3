package app

import (
	"errors"
	"testing"

	"virtuallibrary/internal/keys"
)

func TestSignUpValidation(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	tests := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{"empty name", "", "a@example.com", "password-123"},
		{"bad email", "Reader", "not-an-email", "password-123"},
		{"short password", "Reader", "a@example.com", "short"},
		{"script in name", "<script>alert(1)</script>", "a@example.com", "password-123"},
		{"sql fragment in email", "Reader", "x--@example.com", "password-123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.SignUp(tc.userName, tc.email, tc.password)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	seedUser(t, a, "reader@example.com")
	if _, err := a.SignUp("Someone Else", "Reader@Example.com", "password-456"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken (email compare is case-insensitive)", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	seedUser(t, a, "reader@example.com")
	if _, _, err := a.Login("reader@example.com", "wrong-password", testClient()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := a.Login("nobody@example.com", "password-123", testClient()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

// stubDecryptor substitutes the RSA manager in encrypted-login tests.
type stubDecryptor struct {
	creds keys.Credentials
	err   error
}

func (s stubDecryptor) PublicKeyPEM() string { return "-----BEGIN PUBLIC KEY-----stub" }

func (s stubDecryptor) DecryptCredentials(data, key, iv string) (keys.Credentials, error) {
	return s.creds, s.err
}

func TestLoginEncrypted(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	seedUser(t, a, "reader@example.com")
	a.keys = stubDecryptor{creds: keys.Credentials{Username: "reader@example.com", Password: "password-123"}}

	_, token, err := a.LoginEncrypted("data", "key", "iv", testClient())
	if err != nil {
		t.Fatalf("encrypted login: %v", err)
	}
	_, session, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if session.LoginMethod != "encrypted" {
		t.Fatalf("loginMethod = %q, want encrypted", session.LoginMethod)
	}
}

func TestLoginEncryptedBadEnvelope(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	a.keys = stubDecryptor{err: errors.New("decrypt failed")}
	_, _, err := a.LoginEncrypted("data", "key", "iv", testClient())
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}
