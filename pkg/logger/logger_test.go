package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeLine(t *testing.T, conf Config, msg string) {
	l, err := New(conf)
	require.NoError(t, err)
	l.Info(msg, zap.Int("runs", 3))
	l.Debug("dropped")
	require.NoError(t, l.Sync())
}

func TestFileModes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "extsort.log")
	conf := Config{Path: path, Mode: FileModeAppend, Level: zap.InfoLevel}
	writeLine(t, conf, "first")
	writeLine(t, conf, "second")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(b)
	require.Len(t, lines, 2)

	conf.Mode = FileModeTruncate
	writeLine(t, conf, "third")
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	lines = splitLines(b)
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "third", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 3, entry["runs"])
}

func TestFileModeSet(t *testing.T) {
	var m FileMode
	require.NoError(t, m.Set("rotate"))
	assert.Equal(t, FileModeRotate, m)
	require.NoError(t, m.Set(""))
	assert.Equal(t, FileModeTruncate, m)
	assert.Error(t, m.Set("sideways"))
}

func splitLines(b []byte) [][]byte {
	return bytes.Split(bytes.TrimSpace(b), []byte("\n"))
}
