package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Credentials is the payload of an encrypted login envelope.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Decryptor exposes the server keypair to the auth flow. It is an
// interface so tests can substitute a fixture key.
type Decryptor interface {
	PublicKeyPEM() string
	DecryptCredentials(encryptedData, encryptedKey, iv string) (Credentials, error)
}

// Manager holds the process RSA keypair used for the encrypted-credentials
// login. The key is loaded or generated exactly once at startup and
// injected; there is no lazy global state.
type Manager struct {
	private *rsa.PrivateKey
}

// NewManager wraps an existing private key (used by tests).
func NewManager(private *rsa.PrivateKey) *Manager {
	return &Manager{private: private}
}

// Load reads a PKCS#8 PEM private key from path, generating and persisting
// a new 2048-bit key when the file does not exist.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("keys: no PEM block in %s", path)
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("keys: parse private key: %w", err)
		}
		private, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("keys: %s is not an RSA key", path)
		}
		return &Manager{private: private}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("keys: generate key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("keys: persist key: %w", err)
	}
	return &Manager{private: private}, nil
}

// PublicKeyPEM returns the public half in SubjectPublicKeyInfo PEM form,
// served to clients that encrypt credentials.
func (m *Manager) PublicKeyPEM() string {
	der, err := x509.MarshalPKIXPublicKey(&m.private.PublicKey)
	if err != nil {
		return ""
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// DecryptCredentials opens a hybrid envelope: the AES key is hex encoded
// then RSA-OAEP(SHA-256) encrypted and base64 wrapped; the credential JSON
// is AES-256-CBC encrypted with a hex IV and PKCS#7 padding.
func (m *Manager) DecryptCredentials(encryptedData, encryptedKey, ivHex string) (Credentials, error) {
	keyCipher, err := base64.StdEncoding.DecodeString(encryptedKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode encrypted key: %w", err)
	}
	keyHex, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, m.private, keyCipher, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypt AES key: %w", err)
	}
	aesKey, err := hex.DecodeString(string(keyHex))
	if err != nil {
		return Credentials{}, fmt.Errorf("decode AES key: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return Credentials{}, fmt.Errorf("decode payload: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("init cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return Credentials{}, errors.New("iv must be one AES block")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return Credentials{}, errors.New("payload is not block aligned")
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	plain, err = stripPKCS7(plain)
	if err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-pad], nil
}
