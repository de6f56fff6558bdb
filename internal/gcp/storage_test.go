package gcp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("XOPPSAVE_TEST_VAR", "value")
	assert.Equal(t, "value", GetEnv("XOPPSAVE_TEST_VAR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("XOPPSAVE_TEST_UNSET_VAR", "fallback"))

	t.Setenv("XOPPSAVE_TEST_VAR", "")
	assert.Equal(t, "", GetEnv("XOPPSAVE_TEST_VAR", "fallback"), "set but empty is still set")
}

func TestFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	sum, err := FileHash(path)

	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)

	_, err = FileHash(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: 412}))
	assert.True(t, isPreconditionFailed(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 412})))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: 500}))
	assert.False(t, isPreconditionFailed(errors.New("plain")))
}
