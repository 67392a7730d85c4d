package server

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// secretKeyMasterKey is where cmd/secret-init provisions the key in badger.
const secretKeyMasterKey = "smtp/master_key"

// masterKey resolves the 32-byte AES key: env first, badger store fallback.
func (s *Server) masterKey() ([]byte, error) {
	if raw := strings.TrimSpace(os.Getenv("VELLO_MASTER_KEY")); raw != "" {
		return parseMasterKey(raw)
	}
	if s != nil && s.secrets != nil {
		raw, ok, err := s.secrets.GetString(secretKeyMasterKey)
		if err != nil {
			return nil, err
		}
		if ok {
			return parseMasterKey(raw)
		}
	}
	return nil, errors.New("VELLO_MASTER_KEY is required (32 bytes, base64 or hex)")
}

func parseMasterKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("master key base64 decoded length must be 32, got %d", len(b))
		}
		return b, nil
	}
	raw = strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("master key hex decoded length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("master key must be base64(32 bytes) or hex(32 bytes)")
}

// encryptToString: returns base64(nonce|ciphertext)
func encryptToString(masterKey []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := append(nonce, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptFromString(masterKey []byte, enc string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(enc))
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce := raw[:gcm.NonceSize()]
	ct := raw[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
