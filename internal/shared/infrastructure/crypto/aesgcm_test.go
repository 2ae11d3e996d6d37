package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(offset byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i) + offset
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewFieldSealer(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid key", testKey(0), nil},
		{"empty key", "", ErrEmptyKey},
		{"short key", base64.StdEncoding.EncodeToString([]byte("short")), ErrKeySize},
		{"long key", base64.StdEncoding.EncodeToString(make([]byte, 64)), ErrKeySize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealer, err := NewFieldSealer(tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sealer)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, sealer)
		})
	}

	_, err := NewFieldSealer("not-valid-base64!!!")
	assert.Error(t, err)
}

func TestAESFieldSealer(t *testing.T) {
	sealer, err := NewFieldSealer(testKey(0))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		for _, plain := range []string{"a", "ada@example.com", "+1 514 555 0100", strings.Repeat("x", 512)} {
			stored, err := sealer.Seal(plain)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(stored, sealedPrefix))
			assert.NotContains(t, stored, plain)

			opened, err := sealer.Open(stored)
			require.NoError(t, err)
			assert.Equal(t, plain, opened)
		}
	})

	t.Run("random nonce per value", func(t *testing.T) {
		a, err := sealer.Seal("same")
		require.NoError(t, err)
		b, err := sealer.Seal("same")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty stays empty", func(t *testing.T) {
		stored, err := sealer.Seal("")
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("legacy plaintext passes through", func(t *testing.T) {
		opened, err := sealer.Open("ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", opened)
	})

	t.Run("tampered value", func(t *testing.T) {
		stored, err := sealer.Seal("secret")
		require.NoError(t, err)
		i := len(sealedPrefix) + 4
		repl := "A"
		if stored[i] == 'A' {
			repl = "B"
		}
		tampered := stored[:i] + repl + stored[i+1:]
		_, err = sealer.Open(tampered)
		assert.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := sealer.Open(sealedPrefix + base64.RawStdEncoding.EncodeToString([]byte("abc")))
		assert.ErrorIs(t, err, ErrCiphertextSize)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewFieldSealer(testKey(100))
		require.NoError(t, err)
		stored, err := sealer.Seal("secret")
		require.NoError(t, err)
		_, err = other.Open(stored)
		assert.Error(t, err)
	})
}

func TestPlainSealer(t *testing.T) {
	var s FieldSealer = PlainSealer{}
	stored, err := s.Seal("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", stored)
	opened, err := s.Open(stored)
	require.NoError(t, err)
	assert.Equal(t, stored, opened)
}
