package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcheck/sigcheck/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaultCodeWorkers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Sigcheckfile", "signature_dirs: [sigs]\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.CodeWorkers)
	assert.Equal(t, []string{"sigs"}, cfg.SignatureDirs)
}

func TestLoadRejectsMissingSignatureDirs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Sigcheckfile", "code_workers: 3\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadPreservesExplicitCodeWorkers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Sigcheckfile", "signature_dirs: [sigs]\ncode_workers: 4\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.CodeWorkers)
}
