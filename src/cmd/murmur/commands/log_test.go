package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesLevelFiles(t *testing.T) {
	dir := t.TempDir()

	logger := newLogger(dir, true)
	logger.Level = logrus.DebugLevel
	require.Equal(t, ioutil.Discard, logger.Out)

	logger.Info("hello info")
	logger.Debug("hello debug")

	info, err := os.ReadFile(filepath.Join(dir, "murmur_info.log"))
	require.NoError(t, err)
	require.Contains(t, string(info), "hello info")

	debug, err := os.ReadFile(filepath.Join(dir, "murmur_debug.log"))
	require.NoError(t, err)
	require.Contains(t, string(debug), "hello debug")
	require.NotContains(t, string(debug), "hello info")
}

func TestNewLoggerWithoutDir(t *testing.T) {
	logger := newLogger("", true)
	require.Equal(t, os.Stderr, logger.Out)
	require.Empty(t, logger.Hooks)
}
