package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocalFilesystem(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "history.db")

	var inspected string
	err := checkLocalFilesystemWith(dbPath, func(path string) (string, error) {
		inspected = path
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected, "detector should see the nearest existing parent")
}

func TestCheckLocalFilesystemRejectsNetworkMounts(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWith(filepath.Join(t.TempDir(), "history.db"), func(string) (string, error) {
		return "smbfs", nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smbfs")
	assert.Contains(t, err.Error(), "history.path")
}

func TestCheckLocalFilesystemDetectorError(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWith(filepath.Join(t.TempDir(), "history.db"), func(string) (string, error) {
		return "", errors.New("statfs: boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nfs":    true,
		"SMBFS":  true,
		" cifs ": true,
		"ext4":   false,
		"0x6969": false,
		"":       false,
	}
	for fs, want := range cases {
		assert.Equal(t, want, isNetworkFilesystem(fs), fs)
	}
}
