package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	enc, err := encryptToString(key, "hunter2")
	require.NoError(t, err)
	require.NotContains(t, enc, "hunter2")

	dec, err := decryptFromString(key, enc)
	require.NoError(t, err)
	require.Equal(t, "hunter2", dec)

	// nonce is random: same plaintext, different ciphertext
	enc2, err := encryptToString(key, "hunter2")
	require.NoError(t, err)
	require.NotEqual(t, enc, enc2)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	enc, err := encryptToString(key, "secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	_, err = decryptFromString(key, base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)

	wrong := make([]byte, 32)
	_, err = decryptFromString(wrong, enc)
	require.Error(t, err)
}

func TestParseMasterKeyFormats(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	b, err := parseMasterKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, b)

	b, err = parseMasterKey("0x" + hex.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, b)

	_, err = parseMasterKey(hex.EncodeToString(key[:16]))
	require.Error(t, err)
	_, err = parseMasterKey("not-a-key")
	require.Error(t, err)
}
