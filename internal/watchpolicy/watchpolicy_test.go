package watchpolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsTmpPath(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "daymon-watch-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	got, err := Validate(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestValidate_RejectsRelativePath(t *testing.T) {
	_, err := Validate("some/relative/dir")
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyPath(t *testing.T) {
	_, err := Validate("   ")
	assert.Error(t, err)
}

func TestValidate_RejectsPathOutsideHomeAndTmp(t *testing.T) {
	_, err := Validate("/etc/passwd")
	assert.Error(t, err)
}

func TestValidate_RejectsSensitiveSegments(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	for _, p := range []string{
		filepath.Join(home, ".ssh"),
		filepath.Join(home, ".aws", "config"),
		filepath.Join(home, "project", ".env"),
		filepath.Join(home, "certs", "server.pem"),
	} {
		_, err := Validate(p)
		assert.Error(t, err, "expected %q to be rejected", p)
	}
}

func TestValidate_ExpandsTilde(t *testing.T) {
	got, err := Validate("~/daymon-watch-target")
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Contains(t, got, filepath.Base(home))
}

func TestValidate_ResolvesSymlinks(t *testing.T) {
	base, err := os.MkdirTemp("/tmp", "daymon-watch-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(base) })

	real := filepath.Join(base, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(real, link))

	got, err := Validate(link)
	require.NoError(t, err)
	resolvedReal, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)
	assert.Equal(t, resolvedReal, got)
}

func TestValidate_AllowsNotYetExistingPathUnderExistingAncestor(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "daymon-watch-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	missing := filepath.Join(dir, "soon", "here")
	got, err := Validate(missing)
	require.NoError(t, err)
	assert.Contains(t, got, "soon")
}
