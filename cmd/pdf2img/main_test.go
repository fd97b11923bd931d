package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("UPLOAD_DIR", filepath.Join(root, "uploads"))
	t.Setenv("OUTPUT_DIR", filepath.Join(root, "output"))
	t.Setenv("JOB_STORE", "memory")
	t.Setenv("JOB_DISPATCH", "local")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["convert"])
	assert.True(t, names["sweep"])
}

func TestConvertRequiresFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"convert"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestConvertRejectsMissingFile(t *testing.T) {
	setTestEnv(t)
	root := newRootCmd()
	root.SetArgs([]string{"convert", filepath.Join(t.TempDir(), "missing.pdf")})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestSweepCommandOnEmptyStore(t *testing.T) {
	setTestEnv(t)
	out := &bytes.Buffer{}
	root := newRootCmd()
	root.SetArgs([]string{"sweep", "--retention-hours", "2"})
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "evicted 0")
}
