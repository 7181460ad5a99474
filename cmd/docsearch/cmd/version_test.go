package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docsearch/pkg/strategy"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

func runVersion(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	// When: executing without flags
	out, err := runVersion(t)

	// Then: it prints the program name, version, commit and strategies
	require.NoError(t, err)
	assert.Contains(t, out, "docsearch "+version.Version)
	assert.Contains(t, out, "commit:")
	assert.Contains(t, out, "strategies:")
	for _, name := range strategy.Names() {
		assert.Contains(t, out, name)
	}
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	out, err := runVersion(t, "-o", "short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	out, err := runVersion(t, "--output", "json")
	require.NoError(t, err)

	var report struct {
		Version    string   `json:"version"`
		GoVersion  string   `json:"go_version"`
		Strategies []string `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, version.Version, report.Version)
	assert.NotEmpty(t, report.GoVersion)
	assert.Equal(t, strategy.Names(), report.Strategies)
}

func TestVersionCmd_YAMLOutput(t *testing.T) {
	out, err := runVersion(t, "-o", "yaml")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, version.Version, report["version"])
	assert.Contains(t, report, "strategies")
}

func TestVersionCmd_UnknownFormat(t *testing.T) {
	_, err := runVersion(t, "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

func TestRoot_VersionFlagPrintsBanner(t *testing.T) {
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, version.String(), strings.TrimSpace(buf.String()))
}

func TestRoot_Subcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"search", "watch", "config", "logs", "version"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, found.Name())
	}

	for _, flag := range []string{"config", "debug"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRoot_ProfileFlags(t *testing.T) {
	// Given: profile paths for a short command
	env := newTestEnv(t)
	cpu := filepath.Join(t.TempDir(), "cpu.prof")
	heap := filepath.Join(t.TempDir(), "heap.prof")

	// When: running it with both profile flags
	_, err := env.run(t, "config", "show", "--profile-cpu", cpu, "--profile-mem", heap)

	// Then: both profiles are written
	require.NoError(t, err)
	for _, p := range []string{cpu, heap} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
