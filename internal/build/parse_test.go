package build

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsFromOutput(t *testing.T) {
	output := `# example.com/app
./main.go:12:3: undefined: foo
./handler.go:40:10: cannot use x (variable of type int) as string value

`
	errs := ErrorsFromOutput(output, 1, false)
	require.Len(t, errs, 2)
	assert.Equal(t, "./main.go", errs[0].File)
	assert.Equal(t, 12, errs[0].Line)
	assert.Equal(t, "undefined: foo", errs[0].Message)
	assert.Equal(t, "./main.go:12: undefined: foo", errs[0].String())
	assert.Empty(t, errs[0].Details)
}

func TestErrorsFromOutputWithoutOutput(t *testing.T) {
	errs := ErrorsFromOutput("  \n", 2, false)
	require.Len(t, errs, 1)
	assert.Equal(t, "build command exited with status 2", errs[0].Message)
}

func TestErrorsFromOutputDetails(t *testing.T) {
	errs := ErrorsFromOutput("something broke\nmore context\n", 1, true)
	require.Len(t, errs, 2)
	assert.Equal(t, "something broke\nmore context", errs[0].Details)
	assert.Equal(t, "something broke", errs[0].String())
}

func TestErrorsFromOutputCapped(t *testing.T) {
	var b strings.Builder
	for range maxIssues + 10 {
		b.WriteString("x.go:1: bad\n")
	}
	assert.Len(t, ErrorsFromOutput(b.String(), 1, false), maxIssues)
}

func TestWarningsFromOutput(t *testing.T) {
	pattern := regexp.MustCompile(`(?i)\bwarning\b`)
	output := "compiling\nlib.c:3:1: warning: implicit declaration\nWARNING: cache disabled\ndone\n"

	warns := WarningsFromOutput(output, pattern)
	require.Len(t, warns, 2)
	assert.Equal(t, "lib.c", warns[0].File)
	assert.Equal(t, 3, warns[0].Line)
	assert.Equal(t, "warning: implicit declaration", warns[0].Message)
	assert.Equal(t, "WARNING: cache disabled", warns[1].String())

	assert.Nil(t, WarningsFromOutput(output, nil))
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("artifact v1"), 0o755))
	require.NoError(t, os.WriteFile(b, []byte("artifact v2"), 0o755))

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)

	assert.Len(t, da, 64)
	assert.NotEqual(t, da, db)

	again, err := Digest(a)
	require.NoError(t, err)
	assert.Equal(t, da, again)
	assert.Equal(t, da[:12], ShortDigest(da))
	assert.Equal(t, "abc", ShortDigest("abc"))

	_, err = Digest(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
