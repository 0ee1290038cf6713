package logging

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesEnvPrefixedFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	logger, err := InitLogger("test")
	require.NoError(t, err)

	logger.Info("started")
	logger.Sync()

	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "test_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".log"))

	content, err := os.ReadFile(logsDir + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), "started")
}
