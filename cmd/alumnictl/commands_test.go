package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/alumni/internal/app/service/member"
)

func TestImportCmd_ValidatesFlagsBeforeStarting(t *testing.T) {
	cmd := importCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	require.EqualError(t, cmd.Execute(), "--file is required")

	cmd = importCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--file", filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, cmd.Execute())
}

func TestImportCmd_RejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "members.csv")
	require.NoError(t, os.WriteFile(path, make([]byte, member.MaxImportSize+1), 0o600))

	cmd := importCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-f", path})
	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "larger than")
}

func TestCreateAdminCmd_RequiresEmail(t *testing.T) {
	cmd := createAdminCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	require.EqualError(t, cmd.Execute(), "--email is required")
}
