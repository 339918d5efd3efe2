package cpuconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.cfg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesCoreAndMemoryOptions(t *testing.T) {
	Reset()
	path := writeConfig(t, "# comment line\nCORE v5te\nMEMORY 64M\nITCM 32K\nDTCM 16K\nTIMING on\n")

	require.NoError(t, Load(path))

	cfg := Current()
	assert.Equal(t, "V5TE", cfg.Variant)
	assert.Equal(t, uint32(64*1024*1024), cfg.MemorySize)
	assert.Equal(t, uint32(32*1024), cfg.ITCMSize)
	assert.Equal(t, uint32(16*1024), cfg.DTCMSize)
	assert.True(t, cfg.UseMemoryTimings)
}

func TestLoadRejectsUnknownOption(t *testing.T) {
	Reset()
	path := writeConfig(t, "BOGUS 1\n")

	err := Load(path)

	assert.Error(t, err)
}

func TestLoadRejectsInvalidCoreVariant(t *testing.T) {
	Reset()
	path := writeConfig(t, "CORE v9\n")

	err := Load(path)

	assert.Error(t, err)
}

func TestParseSizeHandlesSuffixes(t *testing.T) {
	v, err := ParseSize("4K")
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), v)

	v, err = ParseSize("2M")
	require.NoError(t, err)
	assert.Equal(t, uint32(2*1024*1024), v)

	v, err = ParseSize("128")
	require.NoError(t, err)
	assert.Equal(t, uint32(128), v)
}
