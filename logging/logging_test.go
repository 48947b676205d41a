package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.log")
	w, err := NewRotatingWriter(path, Options{MaxSize: 10, Backups: 2})
	require.NoError(t, err)
	defer w.Close()

	for _, line := range []string{"first line\n", "second line\n", "third line\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	b1, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "third line\n", string(b1))

	b2, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "second line\n", string(b2))

	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))

	live, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestDebugfRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	SetLevel("info")
	Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetLevel("DEBUG")
	defer SetLevel("info")
	Debugf("shown %d", 2)
	assert.True(t, strings.Contains(buf.String(), "[DEBUG] shown 2"))
}
