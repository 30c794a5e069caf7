package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, INFO)

	Debugf("hidden %d", 1)
	Infof("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), `"level":"info"`)

	buf.Reset()
	SetOutput(&buf, DEBUG)
	Debugf("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, INFO)

	Get().Info().Int("page", 3).Msg("page done")

	assert.Contains(t, buf.String(), `"page":3`)
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, InitLogger(path, INFO))
	defer Close()

	Warnf("disk %s", "full")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk full")
}

func TestCloseFallsBackToStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, InitLogger(path, DEBUG))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	Close()
	Debugf("after %s", "close")
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "after close")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, INFO, ParseLevel("info"))
	assert.Equal(t, INFO, ParseLevel(""))
}
