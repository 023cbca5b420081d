package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/daap14/hafgate/internal/auth"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestGenerate(t *testing.T) {
	out, err := execute(t, "", "generate", "--cost", "4")
	require.NoError(t, err)

	var key, hash string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		switch {
		case strings.HasPrefix(line, "key:"):
			key = strings.TrimSpace(strings.TrimPrefix(line, "key:"))
		case strings.HasPrefix(line, "hash:"):
			hash = strings.TrimSpace(strings.TrimPrefix(line, "hash:"))
		}
	}
	require.NotEmpty(t, key)
	require.NotEmpty(t, hash)
	assert.True(t, strings.HasPrefix(key, auth.KeyPrefix))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)))
}

func TestHashThenVerify(t *testing.T) {
	out, err := execute(t, "my-admin-key\n", "hash", "--cost", "4")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)

	out, err = execute(t, "my-admin-key\n", "verify", hash)
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(out))

	_, err = execute(t, "wrong-key\n", "verify", hash)
	assert.ErrorIs(t, err, auth.ErrInvalidKey)
}

func TestHash_EmptyKey(t *testing.T) {
	_, err := execute(t, "\n", "hash", "--cost", "4")
	assert.Error(t, err)
}
